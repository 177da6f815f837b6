// Package fit contains the model-fitting routines behind each classifier kind. The training
// pipeline only depends on the Estimator and Model interfaces.
package fit

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/miradorstack/mirador-activity/internal/models"
)

// ErrInvalidData reports input arrays the estimators cannot fit.
var ErrInvalidData = errors.New("invalid training data")

// Estimator fits a model from rectangular numeric features and string labels. Only supplied
// params override the estimator's defaults. Fitting stops with ctx.Err() once ctx is done.
type Estimator interface {
	Fit(ctx context.Context, x [][]float64, y []string, params models.Params) (Model, error)
}

// Model is a fitted classifier.
type Model interface {
	// Classes returns the sorted label set; Predict returns an index into it.
	Classes() []string
	NumFeatures() int
	Predict(row []float64) int
}

// encodeLabels maps labels to indices into the sorted set of distinct labels.
func encodeLabels(y []string) ([]string, []int) {
	seen := make(map[string]struct{}, 8)
	for _, label := range y {
		seen[label] = struct{}{}
	}
	classes := make([]string, 0, len(seen))
	for label := range seen {
		classes = append(classes, label)
	}
	sort.Strings(classes)

	lookup := make(map[string]int, len(classes))
	for i, c := range classes {
		lookup[c] = i
	}
	encoded := make([]int, len(y))
	for i, label := range y {
		encoded[i] = lookup[label]
	}
	return classes, encoded
}

func checkShape(x [][]float64, y []string) (int, error) {
	if len(x) == 0 {
		return 0, fmt.Errorf("%w: no samples", ErrInvalidData)
	}
	if len(x) != len(y) {
		return 0, fmt.Errorf("%w: found %d feature rows but %d labels", ErrInvalidData, len(x), len(y))
	}
	n := len(x[0])
	if n == 0 {
		return 0, fmt.Errorf("%w: no features", ErrInvalidData)
	}
	for i, row := range x {
		if len(row) != n {
			return 0, fmt.Errorf("%w: row %d has %d features, expected %d", ErrInvalidData, i, len(row), n)
		}
	}
	return n, nil
}

func argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}
