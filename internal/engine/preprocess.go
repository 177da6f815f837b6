package engine

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/miradorstack/mirador-activity/internal/models"
	"github.com/miradorstack/mirador-activity/internal/utils"
)

// DefaultFallbackInterval is assumed between samples when the table's own spacing cannot be measured.
const DefaultFallbackInterval = 20 * time.Millisecond

type aggregation func(window []float64) float64

var aggregations = map[string]aggregation{
	"min": floats.Min,
	"max": floats.Max,
	"median": func(window []float64) float64 {
		return median(window)
	},
	"stddev": func(window []float64) float64 {
		return stat.StdDev(window, nil)
	},
}

// Preprocessors lists the supported aggregation names.
func Preprocessors() []string {
	names := make([]string, 0, len(aggregations))
	for name := range aggregations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Preprocessor applies trailing sliding-window aggregations to every feature column.
type Preprocessor struct {
	logger   *slog.Logger
	interval time.Duration
	fallback time.Duration
}

// NewPreprocessor constructs a preprocessor. A zero interval measures the sampling interval from
// each table's timestamps; fallback is used when that is not possible.
func NewPreprocessor(logger *slog.Logger, interval, fallback time.Duration) *Preprocessor {
	if logger == nil {
		logger = slog.Default()
	}
	if fallback <= 0 {
		fallback = DefaultFallbackInterval
	}
	return &Preprocessor{logger: logger, interval: interval, fallback: fallback}
}

// Apply aggregates each column over a causal window covering the given duration. The first
// width-1 rows lack a full window and are dropped, as are rows whose aggregate is undefined
// (stddev over a single sample). Each output row keeps the index of the row closing its window. A
// window wider than the table yields no rows.
func (p *Preprocessor) Apply(table models.FeatureTable, name string, window time.Duration) (models.FeatureTable, error) {
	const op = "engine.Preprocessor.Apply"
	agg, ok := aggregations[name]
	if !ok {
		return models.FeatureTable{}, utils.NewAppError(op, fmt.Sprintf("unknown preprocessor %q", name), utils.ErrUnknownPreprocessor)
	}
	if window <= 0 {
		return models.FeatureTable{}, utils.NewAppError(op, "window must be positive", utils.ErrInvalidInput)
	}

	interval := p.samplingInterval(table)
	out := models.FeatureTable{Columns: append([]string(nil), table.Columns...)}
	span := int64(window / interval)
	if span > int64(table.Len()) {
		p.logger.Debug("window wider than the table, nothing to aggregate",
			slog.String("preprocess.name", name),
			slog.Duration("preprocess.window", window),
			slog.Int("data.samples", table.Len()),
		)
		return out, nil
	}
	width := int(span)
	if width < 1 {
		width = 1
	}
	p.logger.Debug("applying preprocessor",
		slog.String("preprocess.name", name),
		slog.Duration("preprocess.window", window),
		slog.Duration("preprocess.interval", interval),
		slog.Int("preprocess.width", width),
	)

	buf := make([]float64, width)
	for i := width - 1; i < table.Len(); i++ {
		row := make([]float64, len(table.Columns))
		defined := true
		for j := range table.Columns {
			for k := 0; k < width; k++ {
				buf[k] = table.Values[i-width+1+k][j]
			}
			row[j] = agg(buf)
			if math.IsNaN(row[j]) {
				defined = false
			}
		}
		if !defined {
			continue
		}
		out.Index = append(out.Index, table.Index[i])
		out.Times = append(out.Times, table.Times[i])
		out.Values = append(out.Values, row)
	}
	return out, nil
}

func (p *Preprocessor) samplingInterval(table models.FeatureTable) time.Duration {
	if p.interval > 0 {
		return p.interval
	}
	if measured, ok := measureInterval(table.Times); ok {
		return measured
	}
	p.logger.Warn("sampling interval could not be measured, using fallback",
		slog.Duration("preprocess.fallback", p.fallback),
		slog.Int("data.samples", table.Len()),
	)
	return p.fallback
}

// measureInterval returns the median positive spacing between consecutive timestamps.
func measureInterval(times []time.Time) (time.Duration, bool) {
	gaps := make([]float64, 0, len(times))
	for i := 1; i < len(times); i++ {
		if d := times[i].Sub(times[i-1]); d > 0 {
			gaps = append(gaps, float64(d))
		}
	}
	if len(gaps) == 0 {
		return 0, false
	}
	return time.Duration(median(gaps)), true
}

// median interpolates between the two middle values for even-length input.
func median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
