package engine

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/miradorstack/mirador-activity/internal/models"
	"github.com/miradorstack/mirador-activity/internal/repo"
	"github.com/miradorstack/mirador-activity/internal/utils"
)

// Shape splits a retrieved result into a feature table and a label vector. The label and time
// columns are removed from the features; every other column is kept in order. Rows with a null label
// or time are dropped, as are rows carrying a null, non-numeric or infinite feature. Surviving rows keep their
// position in result as their index.
func Shape(result repo.Result, labelColumn, timeColumn string) (models.FeatureTable, models.LabelVector, error) {
	const op = "engine.Shape"

	labelIdx, timeIdx := -1, -1
	featureIdx := make([]int, 0, len(result.Columns))
	columns := make([]string, 0, len(result.Columns))
	for i, c := range result.Columns {
		switch c {
		case labelColumn:
			labelIdx = i
		case timeColumn:
			timeIdx = i
		default:
			featureIdx = append(featureIdx, i)
			columns = append(columns, c)
		}
	}
	if labelIdx < 0 {
		return models.FeatureTable{}, models.LabelVector{}, utils.NewAppError(op, fmt.Sprintf("label column %q not in result", labelColumn), utils.ErrMissingColumn)
	}
	if timeIdx < 0 {
		return models.FeatureTable{}, models.LabelVector{}, utils.NewAppError(op, fmt.Sprintf("time column %q not in result", timeColumn), utils.ErrMissingColumn)
	}

	table := models.FeatureTable{Columns: columns}
	var labels models.LabelVector

rows:
	for i, row := range result.Values {
		if labelIdx >= len(row) || timeIdx >= len(row) {
			continue
		}
		label, ok := labelValue(row[labelIdx])
		if !ok {
			continue
		}
		ts, ok := timeValue(row[timeIdx])
		if !ok {
			continue
		}
		values := make([]float64, len(featureIdx))
		for j, idx := range featureIdx {
			if idx >= len(row) {
				continue rows
			}
			v, ok := numericValue(row[idx])
			if !ok {
				continue rows
			}
			values[j] = v
		}

		table.Index = append(table.Index, i)
		table.Times = append(table.Times, ts)
		table.Values = append(table.Values, values)
		labels.Index = append(labels.Index, i)
		labels.Values = append(labels.Values, label)
	}
	return table, labels, nil
}

func labelValue(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	default:
		return fmt.Sprint(x), true
	}
}

func timeValue(v any) (time.Time, bool) {
	switch x := v.(type) {
	case int64:
		return time.UnixMilli(x).UTC(), true
	case int:
		return time.UnixMilli(int64(x)).UTC(), true
	case float64:
		return time.UnixMilli(int64(x)).UTC(), true
	case time.Time:
		return x.UTC(), true
	case string:
		ts, err := time.Parse(time.RFC3339Nano, x)
		if err != nil {
			return time.Time{}, false
		}
		return ts.UTC(), true
	default:
		return time.Time{}, false
	}
}

func numericValue(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int64:
		f = float64(x)
	case int:
		f = float64(x)
	case bool:
		if x {
			f = 1
		}
	case string:
		parsed, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
