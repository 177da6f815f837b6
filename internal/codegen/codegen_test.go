package codegen

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-activity/internal/fit"
	"github.com/miradorstack/mirador-activity/internal/models"
)

func fittedTree(t *testing.T) fit.Model {
	t.Helper()
	x := [][]float64{{0, 1}, {0.5, 1}, {5, 1}, {5.5, 1}}
	y := []string{"WALKING", "WALKING", "STILL", "STILL"}
	model, err := fit.DecisionTree{}.Fit(context.Background(), x, y, models.Params{"max_depth": models.IntParam(2)})
	require.NoError(t, err)
	return model
}

func TestGenerateJavaScript(t *testing.T) {
	src, err := Generate(fittedTree(t), JavaScript, "Activity", []string{"Accelerometer-X", "Accelerometer-Y"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(src, "var Activity = function() {"))
	assert.Contains(t, src, `this.features = ["Accelerometer-X","Accelerometer-Y"];`)
	assert.Contains(t, src, `this.classes = ["STILL","WALKING"];`)
	assert.Contains(t, src, "if (features[0] <= 2.75) {")
	assert.Contains(t, src, "return 0;")
	assert.Contains(t, src, "return 1;")
	assert.Contains(t, src, "features.length !== 2")
	assert.Equal(t, strings.Count(src, "{"), strings.Count(src, "}"))
}

func TestGenerateForestJavaScript(t *testing.T) {
	x := [][]float64{{0}, {0.5}, {5}, {5.5}}
	y := []string{"a", "a", "b", "b"}
	model, err := fit.RandomForest{}.Fit(context.Background(), x, y, models.Params{"n_estimators": models.IntParam(3)})
	require.NoError(t, err)

	src, err := Generate(model, JavaScript, "Activity", []string{"x"})
	require.NoError(t, err)
	// three trees plus predict
	assert.Equal(t, 4, strings.Count(src, "function(features) {"))
	assert.Contains(t, src, "var votes = [0,0];")
}

func TestGenerateJSON(t *testing.T) {
	src, err := Generate(fittedTree(t), JSON, "Activity", []string{"Accelerometer-X", "Accelerometer-Y"})
	require.NoError(t, err)

	var doc struct {
		ClassName string   `json:"class_name"`
		Features  []string `json:"features"`
		Classes   []string `json:"classes"`
		Trees     []struct {
			Feature *int `json:"feature"`
		} `json:"trees"`
	}
	require.NoError(t, json.Unmarshal([]byte(src), &doc))
	assert.Equal(t, "Activity", doc.ClassName)
	assert.Equal(t, []string{"STILL", "WALKING"}, doc.Classes)
	require.Len(t, doc.Trees, 1)
	require.NotNil(t, doc.Trees[0].Feature)
	assert.Equal(t, 0, *doc.Trees[0].Feature)
	assert.Equal(t, "application/json", JSON.ContentType())
}

func TestGenerateRejectsBadInput(t *testing.T) {
	model := fittedTree(t)

	_, err := Generate(model, "python", "Activity", []string{"a", "b"})
	assert.ErrorIs(t, err, ErrUnsupportedDialect)

	_, err = Generate(model, JavaScript, "not a class", []string{"a", "b"})
	assert.Error(t, err)

	_, err = Generate(model, JavaScript, "Activity", []string{"a"})
	assert.Error(t, err)
}
