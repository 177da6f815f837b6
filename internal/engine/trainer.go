package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/miradorstack/mirador-activity/internal/fit"
	"github.com/miradorstack/mirador-activity/internal/models"
	"github.com/miradorstack/mirador-activity/internal/registry"
	"github.com/miradorstack/mirador-activity/internal/utils"
)

// Trainer fits a classifier kind on shaped data.
type Trainer struct {
	logger *slog.Logger
}

// NewTrainer constructs a trainer.
func NewTrainer(logger *slog.Logger) *Trainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trainer{logger: logger}
}

// Train validates params against the kind, re-aligns labels to the surviving feature rows and fits
// the kind's estimator once. Only supplied params reach the estimator.
func (t *Trainer) Train(ctx context.Context, kind registry.Kind, features models.FeatureTable, labels models.LabelVector, params models.Params) (fit.Model, error) {
	const op = "engine.Trainer.Train"
	if err := kind.CheckParams(params); err != nil {
		return nil, err
	}
	if kind.Estimator == nil {
		return nil, utils.NewAppError(op, fmt.Sprintf("%s has no estimator", kind.Name), utils.ErrTrainingFailed)
	}

	x, y := align(features, labels)
	if len(x) == 0 {
		return nil, utils.NewAppError(op, "no samples left after shaping", utils.ErrTrainingFailed)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	model, err := kind.Estimator.Fit(ctx, x, y, params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, utils.NewAppError(op, fmt.Sprintf("fit %s", kind.Name), fmt.Errorf("%w: %v", utils.ErrTrainingFailed, err))
	}

	t.logger.Debug("model fitted",
		slog.String("model.name", kind.Name),
		slog.Int("data.samples", len(x)),
		slog.Int("data.features", len(features.Columns)),
		slog.Int("model.classes", len(model.Classes())),
	)
	return model, nil
}

// align pairs each feature row with the label carrying the same index. Rows without a label are
// dropped.
func align(features models.FeatureTable, labels models.LabelVector) ([][]float64, []string) {
	byIndex := make(map[int]string, labels.Len())
	for i, idx := range labels.Index {
		byIndex[idx] = labels.Values[i]
	}

	x := make([][]float64, 0, features.Len())
	y := make([]string, 0, features.Len())
	for i, idx := range features.Index {
		label, ok := byIndex[idx]
		if !ok {
			continue
		}
		x = append(x, features.Values[i])
		y = append(y, label)
	}
	return x, y
}
