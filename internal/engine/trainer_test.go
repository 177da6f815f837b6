package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/miradorstack/mirador-activity/internal/fit"
	"github.com/miradorstack/mirador-activity/internal/models"
	"github.com/miradorstack/mirador-activity/internal/registry"
	"github.com/miradorstack/mirador-activity/internal/utils"
)

type recordingEstimator struct {
	x      [][]float64
	y      []string
	params models.Params
	err    error
}

func (r *recordingEstimator) Fit(ctx context.Context, x [][]float64, y []string, params models.Params) (fit.Model, error) {
	r.x, r.y, r.params = x, y, params
	if r.err != nil {
		return nil, r.err
	}
	return fit.DecisionTree{}.Fit(ctx, x, y, params)
}

func testKind(est fit.Estimator) registry.Kind {
	return registry.Kind{
		Name:      "TestClassifier",
		Params:    map[string]models.ParamKind{"max_depth": models.ParamInt},
		Estimator: est,
	}
}

func TestTrainerRealignsLabelsToSurvivingRows(t *testing.T) {
	est := &recordingEstimator{}
	features := models.FeatureTable{
		Columns: []string{"v"},
		Index:   []int{2, 3, 5},
		Values:  [][]float64{{1}, {2}, {9}},
	}
	labels := models.LabelVector{
		Index:  []int{0, 1, 2, 3, 4, 5},
		Values: []string{"a", "a", "a", "a", "b", "b"},
	}

	model, err := NewTrainer(nil).Train(context.Background(), testKind(est), features, labels, models.Params{"max_depth": models.IntParam(1)})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if strings.Join(est.y, ",") != "a,a,b" {
		t.Fatalf("unexpected aligned labels %v", est.y)
	}
	if len(est.params) != 1 {
		t.Fatalf("expected only supplied params to be forwarded, got %v", est.params)
	}
	if model.Classes()[model.Predict([]float64{9})] != "b" {
		t.Fatalf("expected the fitted model to separate the classes")
	}
}

func TestTrainerRejectsParamOutsideKind(t *testing.T) {
	est := &recordingEstimator{}
	features := models.FeatureTable{Columns: []string{"v"}, Index: []int{0}, Values: [][]float64{{1}}}
	labels := models.LabelVector{Index: []int{0}, Values: []string{"a"}}

	_, err := NewTrainer(nil).Train(context.Background(), testKind(est), features, labels, models.Params{"n_estimators": models.IntParam(3)})
	if !errors.Is(err, utils.ErrIllegalArgument) {
		t.Fatalf("expected ErrIllegalArgument, got %v", err)
	}
	if est.x != nil {
		t.Fatalf("estimator must not run with illegal params")
	}
}

func TestTrainerWrapsFitFailure(t *testing.T) {
	est := &recordingEstimator{err: fit.ErrInvalidData}
	features := models.FeatureTable{Columns: []string{"v"}, Index: []int{0}, Values: [][]float64{{1}}}
	labels := models.LabelVector{Index: []int{0}, Values: []string{"a"}}

	_, err := NewTrainer(nil).Train(context.Background(), testKind(est), features, labels, nil)
	if !errors.Is(err, utils.ErrTrainingFailed) {
		t.Fatalf("expected ErrTrainingFailed, got %v", err)
	}
}

func TestTrainerNoSamples(t *testing.T) {
	_, err := NewTrainer(nil).Train(context.Background(), testKind(&recordingEstimator{}), models.FeatureTable{}, models.LabelVector{}, nil)
	if !errors.Is(err, utils.ErrTrainingFailed) {
		t.Fatalf("expected ErrTrainingFailed for an empty table, got %v", err)
	}
}

func TestCompilerWrapsFailures(t *testing.T) {
	if _, err := NewCompiler("python"); err == nil {
		t.Fatalf("expected an unsupported dialect to be rejected")
	}

	model, err := fit.DecisionTree{}.Fit(context.Background(), [][]float64{{1}, {2}}, []string{"a", "b"}, nil)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	compiler, err := NewCompiler("")
	if err != nil {
		t.Fatalf("compiler: %v", err)
	}
	if _, err := compiler.Compile(model, "not a name", []string{"v"}); !errors.Is(err, utils.ErrCompilationFailed) {
		t.Fatalf("expected ErrCompilationFailed, got %v", err)
	}

	artifact, err := compiler.Compile(model, "", []string{"v"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if artifact.ClassName != DefaultClassName || artifact.Dialect != "js" {
		t.Fatalf("unexpected artifact metadata %+v", artifact)
	}
}
