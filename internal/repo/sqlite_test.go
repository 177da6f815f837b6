package repo

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/miradorstack/mirador-activity/internal/query"
)

func newSeededStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	base := time.UnixMilli(1_000)
	points := []Point{
		{Measurement: "devicemotion", Time: base, Tags: map[string]string{"Traininglabel": "STILL"}, Fields: map[string]float64{"x": 0.1, "y": 0.2}},
		{Measurement: "devicemotion", Time: base.Add(20 * time.Millisecond), Tags: map[string]string{"Traininglabel": "WALKING"}, Fields: map[string]float64{"x": 3.5, "y": 1.5}},
		{Measurement: "devicemotion", Time: base.Add(40 * time.Millisecond), Tags: map[string]string{"Traininglabel": "RUNNING"}, Fields: map[string]float64{"x": 9, "y": 7}},
		{Measurement: "gyro", Time: base, Tags: map[string]string{"Traininglabel": "STILL"}, Fields: map[string]float64{"alpha": 1}},
	}
	if err := store.WritePoints(context.Background(), points); err != nil {
		t.Fatalf("write points: %v", err)
	}
	return store
}

func TestSQLiteQuerySelectsLabelsInTimeOrder(t *testing.T) {
	store := newSeededStore(t)

	q, err := query.Build([]string{"WALKING", "STILL"}, []string{"x", "y", "Traininglabel"}, "devicemotion", "Traininglabel")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	got, err := store.Query(context.Background(), q)
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	want := Result{
		Columns: []string{"time", "x", "y", "Traininglabel"},
		Values: [][]any{
			{int64(1000), 0.1, 0.2, "STILL"},
			{int64(1020), 3.5, 1.5, "WALKING"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected result (-want +got):\n%s", diff)
	}
}

func TestSQLiteQueryAllColumns(t *testing.T) {
	store := newSeededStore(t)

	q, err := query.Build([]string{"RUNNING"}, []string{"*"}, "devicemotion", "Traininglabel")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	got, err := store.Query(context.Background(), q)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	want := Result{
		Columns: []string{"time", "Traininglabel", "x", "y"},
		Values:  [][]any{{int64(1040), "RUNNING", 9.0, 7.0}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected result (-want +got):\n%s", diff)
	}
}

func TestSQLiteQueryMissingFieldIsNull(t *testing.T) {
	store := newSeededStore(t)

	q, _ := query.Build([]string{"STILL"}, []string{"z"}, "devicemotion", "Traininglabel")
	got, err := store.Query(context.Background(), q)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got.Values) != 1 || got.Values[0][1] != nil {
		t.Fatalf("expected a single row with a null cell, got %+v", got.Values)
	}
}

func TestSQLiteQueryTreatsLabelsAsData(t *testing.T) {
	store := newSeededStore(t)

	q, _ := query.Build([]string{"STILL' OR '1'='1"}, nil, "devicemotion", "Traininglabel")
	got, err := store.Query(context.Background(), q)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got.Values) != 0 || got.Columns != nil {
		t.Fatalf("expected no rows, got %+v", got)
	}
}

func TestSQLiteDiscovery(t *testing.T) {
	store := newSeededStore(t)
	ctx := context.Background()

	measurements, err := store.Measurements(ctx)
	if err != nil {
		t.Fatalf("measurements: %v", err)
	}
	if diff := cmp.Diff([]string{"devicemotion", "gyro"}, measurements); diff != "" {
		t.Fatalf("measurements (-want +got):\n%s", diff)
	}

	labels, err := store.LabelValues(ctx, "devicemotion", "Traininglabel")
	if err != nil {
		t.Fatalf("labels: %v", err)
	}
	if diff := cmp.Diff([]string{"RUNNING", "STILL", "WALKING"}, labels); diff != "" {
		t.Fatalf("labels (-want +got):\n%s", diff)
	}

	fields, err := store.FieldKeys(ctx, "gyro")
	if err != nil {
		t.Fatalf("fields: %v", err)
	}
	if diff := cmp.Diff([]string{"alpha"}, fields); diff != "" {
		t.Fatalf("fields (-want +got):\n%s", diff)
	}

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
