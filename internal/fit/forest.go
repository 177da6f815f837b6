package fit

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/miradorstack/mirador-activity/internal/models"
)

const defaultEstimators = 10

// Forest is a fitted random forest. Prediction is a majority vote over the trees, ties going to
// the lowest class index.
type Forest struct {
	Trees     []*Tree
	classes   []string
	nFeatures int
	// OOBScore is the out-of-bag accuracy; only set when oob_score was requested.
	OOBScore float64
}

// Classes implements Model.
func (f *Forest) Classes() []string { return f.classes }

// NumFeatures implements Model.
func (f *Forest) NumFeatures() int { return f.nFeatures }

// Predict implements Model.
func (f *Forest) Predict(row []float64) int {
	votes := make([]float64, len(f.classes))
	for _, t := range f.Trees {
		votes[t.Predict(row)]++
	}
	return argmax(votes)
}

// RandomForest fits an ensemble of randomized trees. warm_start is accepted for compatibility and
// has no effect because fitted models are never refitted.
type RandomForest struct{}

// Fit implements Estimator.
func (RandomForest) Fit(ctx context.Context, x [][]float64, y []string, params models.Params) (Model, error) {
	nFeatures, err := checkShape(x, y)
	if err != nil {
		return nil, err
	}
	opts, err := treeOptionsFrom(params)
	if err != nil {
		return nil, err
	}
	setting, _ := params.String("max_features")
	if opts.maxFeatures, err = resolveMaxFeatures(setting, nFeatures); err != nil {
		return nil, err
	}

	nEstimators := defaultEstimators
	if v, ok := params.Int("n_estimators"); ok {
		if v < 1 {
			return nil, fmt.Errorf("%w: n_estimators must be at least 1", ErrInvalidData)
		}
		nEstimators = v
	}
	bootstrap := true
	if v, ok := params.Bool("bootstrap"); ok {
		bootstrap = v
	}
	oob, _ := params.Bool("oob_score")
	if oob && !bootstrap {
		return nil, fmt.Errorf("%w: out of bag estimation only available if bootstrap=true", ErrInvalidData)
	}

	classes, encoded := encodeLabels(y)
	master := rand.New(rand.NewSource(opts.randomState))
	forest := &Forest{classes: classes, nFeatures: nFeatures}

	n := len(x)
	var oobVotes [][]float64
	if oob {
		oobVotes = make([][]float64, n)
		for i := range oobVotes {
			oobVotes[i] = make([]float64, len(classes))
		}
	}

	for t := 0; t < nEstimators; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rng := rand.New(rand.NewSource(master.Int63()))
		indices := make([]int, n)
		inBag := make([]bool, n)
		for i := range indices {
			if bootstrap {
				indices[i] = rng.Intn(n)
			} else {
				indices[i] = i
			}
			inBag[indices[i]] = true
		}

		b := newBuilder(x, encoded, len(classes), opts, rng, n)
		root, err := b.grow(ctx, indices)
		if err != nil {
			return nil, err
		}
		tree := &Tree{Root: root, classes: classes, nFeatures: nFeatures}
		forest.Trees = append(forest.Trees, tree)

		if oob {
			for i := 0; i < n; i++ {
				if !inBag[i] {
					oobVotes[i][tree.Predict(x[i])]++
				}
			}
		}
	}

	if oob {
		correct, counted := 0, 0
		for i, votes := range oobVotes {
			total := 0.0
			for _, v := range votes {
				total += v
			}
			if total == 0 {
				continue
			}
			counted++
			if argmax(votes) == encoded[i] {
				correct++
			}
		}
		if counted > 0 {
			forest.OOBScore = float64(correct) / float64(counted)
		}
	}
	return forest, nil
}
