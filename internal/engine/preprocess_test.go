package engine

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/miradorstack/mirador-activity/internal/models"
	"github.com/miradorstack/mirador-activity/internal/utils"
)

func evenTable(columns []string, rows [][]float64, spacing time.Duration) models.FeatureTable {
	table := models.FeatureTable{Columns: columns}
	base := time.UnixMilli(0)
	for i, row := range rows {
		table.Index = append(table.Index, i)
		table.Times = append(table.Times, base.Add(time.Duration(i)*spacing))
		table.Values = append(table.Values, row)
	}
	return table
}

func TestPreprocessMinOverConstantColumn(t *testing.T) {
	rows := make([][]float64, 10)
	for i := range rows {
		rows[i] = []float64{4.2, float64(i)}
	}
	table := evenTable([]string{"c", "ramp"}, rows, 20*time.Millisecond)

	out, err := NewPreprocessor(nil, 0, 0).Apply(table, "min", 60*time.Millisecond)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if out.Len() != 8 {
		t.Fatalf("expected 8 rows after dropping the first two, got %d", out.Len())
	}
	for i, row := range out.Values {
		if row[0] != 4.2 {
			t.Fatalf("row %d: expected constant 4.2, got %v", i, row[0])
		}
		if row[1] != float64(i) {
			t.Fatalf("row %d: expected trailing min %d, got %v", i, i, row[1])
		}
	}
	if diff := cmp.Diff([]int{2, 3, 4, 5, 6, 7, 8, 9}, out.Index); diff != "" {
		t.Fatalf("index (-want +got):\n%s", diff)
	}
}

func TestPreprocessAggregations(t *testing.T) {
	table := evenTable([]string{"v"}, [][]float64{{1}, {5}, {3}, {8}}, 10*time.Millisecond)
	p := NewPreprocessor(nil, 0, 0)

	cases := map[string][]float64{
		"max":    {5, 8},
		"median": {3, 5},
		"stddev": {2, math.Sqrt(6.333333333333333)},
	}
	for name, want := range cases {
		out, err := p.Apply(table, name, 30*time.Millisecond)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		got := out.Column(0)
		if len(got) != len(want) {
			t.Fatalf("%s: expected %d rows, got %d", name, len(want), len(got))
		}
		for i := range want {
			if math.Abs(got[i]-want[i]) > 1e-9 {
				t.Fatalf("%s row %d: expected %v, got %v", name, i, want[i], got[i])
			}
		}
	}
}

func TestPreprocessUsesConfiguredInterval(t *testing.T) {
	table := evenTable([]string{"v"}, [][]float64{{1}, {2}, {3}, {4}, {5}}, 20*time.Millisecond)

	out, err := NewPreprocessor(nil, 50*time.Millisecond, 0).Apply(table, "max", 100*time.Millisecond)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out.Len() != 4 {
		t.Fatalf("expected width 2 and 4 rows, got %d", out.Len())
	}
}

func TestPreprocessFallsBackWhenIntervalUnmeasurable(t *testing.T) {
	table := evenTable([]string{"v"}, [][]float64{{1}}, 0)

	out, err := NewPreprocessor(nil, 0, 10*time.Millisecond).Apply(table, "min", 30*time.Millisecond)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected no full window, got %d rows", out.Len())
	}
}

func TestPreprocessDropsUndefinedStddev(t *testing.T) {
	table := evenTable([]string{"v"}, [][]float64{{1}, {2}}, 20*time.Millisecond)

	out, err := NewPreprocessor(nil, 0, 0).Apply(table, "stddev", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected single-sample stddev rows to be dropped, got %d", out.Len())
	}
}

func TestPreprocessUnknownName(t *testing.T) {
	table := evenTable([]string{"v"}, [][]float64{{1}}, 20*time.Millisecond)

	if _, err := NewPreprocessor(nil, 0, 0).Apply(table, "mean", time.Second); !errors.Is(err, utils.ErrUnknownPreprocessor) {
		t.Fatalf("expected ErrUnknownPreprocessor, got %v", err)
	}
}

func TestPreprocessWindowWiderThanTable(t *testing.T) {
	table := evenTable([]string{"x"}, [][]float64{{1}, {2}, {3}}, 20*time.Millisecond)

	out, err := NewPreprocessor(nil, 0, 0).Apply(table, "min", 1<<59)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected no rows, got %d", out.Len())
	}
	if diff := cmp.Diff([]string{"x"}, out.Columns); diff != "" {
		t.Fatalf("columns (-want +got):\n%s", diff)
	}
}
