package models

import "time"

// FeatureTable is a time-ordered set of numeric feature rows. Index holds each row's position in the
// originally retrieved result so labels can be re-aligned after rows are dropped.
type FeatureTable struct {
	Columns []string
	Index   []int
	Times   []time.Time
	Values  [][]float64
}

// Len returns the number of rows.
func (t FeatureTable) Len() int {
	return len(t.Values)
}

// Column returns a copy of column j.
func (t FeatureTable) Column(j int) []float64 {
	out := make([]float64, len(t.Values))
	for i, row := range t.Values {
		out[i] = row[j]
	}
	return out
}

// LabelVector holds one label per retained row, keyed by the same index as the FeatureTable.
type LabelVector struct {
	Index  []int
	Values []string
}

// Len returns the number of labels.
func (l LabelVector) Len() int {
	return len(l.Values)
}

// Artifact is the compiled, portable form of a trained classifier.
type Artifact struct {
	Source      string
	Dialect     string
	ContentType string
	ClassName   string
	Classes     []string
	Features    []string
}
