package fit

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-activity/internal/models"
)

// separable returns samples where feature 0 separates the classes and feature 1 is noise.
func separable(n int) ([][]float64, []string) {
	x := make([][]float64, 0, 2*n)
	y := make([]string, 0, 2*n)
	for i := 0; i < n; i++ {
		noise := float64(i%7) / 7
		x = append(x, []float64{float64(i%10) / 10, noise})
		y = append(y, "WALKING")
		x = append(x, []float64{5 + float64(i%10)/10, noise})
		y = append(y, "STILL")
	}
	return x, y
}

func TestDecisionTreeSeparatesClasses(t *testing.T) {
	x, y := separable(50)
	model, err := DecisionTree{}.Fit(context.Background(), x, y, models.Params{"max_depth": models.IntParam(2)})
	require.NoError(t, err)

	tree := model.(*Tree)
	assert.Equal(t, []string{"STILL", "WALKING"}, tree.Classes())
	assert.Equal(t, 2, tree.NumFeatures())
	assert.Equal(t, 0, tree.Root.Feature)
	assert.LessOrEqual(t, tree.Depth(), 2)

	assert.Equal(t, 1, tree.Predict([]float64{0.3, 0.5}))
	assert.Equal(t, 0, tree.Predict([]float64{5.5, 0.5}))
}

func TestDecisionTreeMaxDepthBoundsTree(t *testing.T) {
	x := [][]float64{{0}, {1}, {2}, {3}, {4}, {5}, {6}, {7}}
	y := []string{"a", "b", "a", "b", "a", "b", "a", "b"}

	full, err := DecisionTree{}.Fit(context.Background(), x, y, nil)
	require.NoError(t, err)
	for i, row := range x {
		assert.Equal(t, y[i], full.Classes()[full.Predict(row)])
	}

	shallow, err := DecisionTree{}.Fit(context.Background(), x, y, models.Params{"max_depth": models.IntParam(1)})
	require.NoError(t, err)
	assert.Equal(t, 1, shallow.(*Tree).Depth())
}

func TestDecisionTreeMaxLeafNodes(t *testing.T) {
	x := [][]float64{{0}, {1}, {2}, {3}, {4}, {5}, {6}, {7}}
	y := []string{"a", "b", "a", "b", "a", "b", "a", "b"}

	model, err := DecisionTree{}.Fit(context.Background(), x, y, models.Params{"max_leaf_nodes": models.IntParam(3)})
	require.NoError(t, err)
	assert.Equal(t, 3, model.(*Tree).Leaves())
}

func TestDecisionTreeMinSamplesLeaf(t *testing.T) {
	x, y := separable(20)
	model, err := DecisionTree{}.Fit(context.Background(), x, y, models.Params{"min_samples_leaf": models.IntParam(15)})
	require.NoError(t, err)

	var walk func(*Node)
	walk = func(n *Node) {
		if n.IsLeaf() {
			total := 0.0
			for _, c := range n.Counts {
				total += c
			}
			assert.GreaterOrEqual(t, total, 15.0)
			return
		}
		walk(n.Left)
		walk(n.Right)
	}
	walk(model.(*Tree).Root)
}

func TestDecisionTreeIsDeterministic(t *testing.T) {
	x, y := separable(30)
	params := models.Params{"splitter": models.StringParam("random"), "random_state": models.IntParam(7)}
	a, err := DecisionTree{}.Fit(context.Background(), x, y, params)
	require.NoError(t, err)
	b, err := DecisionTree{}.Fit(context.Background(), x, y, params)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDecisionTreeRejectsBadInput(t *testing.T) {
	_, err := DecisionTree{}.Fit(context.Background(), nil, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidData)

	_, err = DecisionTree{}.Fit(context.Background(), [][]float64{{1}, {2}}, []string{"a"}, nil)
	assert.ErrorIs(t, err, ErrInvalidData)

	_, err = DecisionTree{}.Fit(context.Background(), [][]float64{{1, 2}, {2}}, []string{"a", "b"}, nil)
	assert.ErrorIs(t, err, ErrInvalidData)

	_, err = DecisionTree{}.Fit(context.Background(), [][]float64{{1}, {2}}, []string{"a", "b"}, models.Params{"criterion": models.StringParam("mse")})
	assert.ErrorIs(t, err, ErrInvalidData)

	_, err = DecisionTree{}.Fit(context.Background(), [][]float64{{1}, {2}}, []string{"a", "b"}, models.Params{"max_features": models.IntParam(3)})
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestDecisionTreeSingleClass(t *testing.T) {
	model, err := DecisionTree{}.Fit(context.Background(), [][]float64{{1}, {2}, {3}}, []string{"STILL", "STILL", "STILL"}, nil)
	require.NoError(t, err)
	assert.True(t, model.(*Tree).Root.IsLeaf())
	assert.Equal(t, 0, model.Predict([]float64{10}))
}

func TestRandomForestVotes(t *testing.T) {
	x, y := separable(40)
	model, err := RandomForest{}.Fit(context.Background(), x, y, models.Params{
		"n_estimators": models.IntParam(5),
		"oob_score":    models.BoolParam(true),
		"max_features": models.StringParam("None"),
	})
	require.NoError(t, err)

	forest := model.(*Forest)
	assert.Len(t, forest.Trees, 5)
	assert.Equal(t, []string{"STILL", "WALKING"}, forest.Classes())
	assert.Equal(t, 1, forest.Predict([]float64{0.2, 0.1}))
	assert.Equal(t, 0, forest.Predict([]float64{5.2, 0.1}))
	assert.Greater(t, forest.OOBScore, 0.5)
}

func TestRandomForestOOBRequiresBootstrap(t *testing.T) {
	x, y := separable(5)
	_, err := RandomForest{}.Fit(context.Background(), x, y, models.Params{
		"oob_score": models.BoolParam(true),
		"bootstrap": models.BoolParam(false),
	})
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestResolveMaxFeatures(t *testing.T) {
	cases := map[string]int{"": 3, "sqrt": 3, "auto": 3, "log2": 3, "2": 2, "0.5": 5, "None": 10}
	for setting, want := range cases {
		got, err := resolveMaxFeatures(setting, 10)
		require.NoError(t, err, setting)
		assert.Equal(t, want, got, setting)
	}
	_, err := resolveMaxFeatures("many", 10)
	assert.ErrorIs(t, err, ErrInvalidData)
	_, err = resolveMaxFeatures("11", 10)
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestDecisionTreeIgnoresNonFiniteThresholds(t *testing.T) {
	x := [][]float64{{math.Inf(-1)}, {1}, {2}, {3}}
	y := []string{"A", "B", "A", "B"}
	model, err := DecisionTree{}.Fit(context.Background(), x, y, models.Params{"max_depth": models.IntParam(50)})
	require.NoError(t, err)

	tree := model.(*Tree)
	assert.LessOrEqual(t, tree.Depth(), 3)
	var walk func(n *Node)
	walk = func(n *Node) {
		if n.IsLeaf() {
			return
		}
		assert.False(t, math.IsNaN(n.Threshold) || math.IsInf(n.Threshold, 0), "threshold %v", n.Threshold)
		walk(n.Left)
		walk(n.Right)
	}
	walk(tree.Root)
}

func TestFitStopsWhenContextDone(t *testing.T) {
	x, y := separable(20)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := DecisionTree{}.Fit(ctx, x, y, nil)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = RandomForest{}.Fit(ctx, x, y, models.Params{"n_estimators": models.IntParam(10000000)})
	assert.ErrorIs(t, err, context.Canceled)
}
