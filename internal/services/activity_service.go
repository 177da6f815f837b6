package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/miradorstack/mirador-activity/internal/engine"
	"github.com/miradorstack/mirador-activity/internal/metrics"
	"github.com/miradorstack/mirador-activity/internal/models"
	"github.com/miradorstack/mirador-activity/internal/utils"
)

// Catalog defines the store discovery operations exposed to clients.
type Catalog interface {
	Measurements(ctx context.Context) ([]string, error)
	LabelValues(ctx context.Context, measurement, key string) ([]string, error)
	FieldKeys(ctx context.Context, measurement string) ([]string, error)
	Ping(ctx context.Context) error
}

// ClassifierInfo describes one trainable classifier kind.
type ClassifierInfo struct {
	Name   string
	Params map[string]models.ParamKind
}

// ActivityService is the facade the transport layer talks to.
type ActivityService struct {
	logger    *slog.Logger
	catalog   Catalog
	pipeline  *engine.Pipeline
	latencies *utils.LatencyTracker
}

// NewActivityService constructs the service facade.
func NewActivityService(logger *slog.Logger, catalog Catalog, pipeline *engine.Pipeline) *ActivityService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivityService{
		logger:    logger,
		catalog:   catalog,
		pipeline:  pipeline,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Measurements lists the datasets available for training.
func (s *ActivityService) Measurements(ctx context.Context) ([]string, error) {
	if s.catalog == nil {
		return nil, fmt.Errorf("catalog not configured")
	}
	values, err := s.catalog.Measurements(ctx)
	if err != nil {
		return nil, s.storeError("services.Measurements", err)
	}
	return values, nil
}

// Labels lists the distinct activity labels recorded in measurement.
func (s *ActivityService) Labels(ctx context.Context, measurement string) ([]string, error) {
	if s.catalog == nil || s.pipeline == nil {
		return nil, fmt.Errorf("service not configured")
	}
	if strings.TrimSpace(measurement) == "" {
		return nil, utils.NewAppError("services.Labels", "measurement is required", utils.ErrInvalidInput)
	}
	values, err := s.catalog.LabelValues(ctx, measurement, s.pipeline.LabelKey())
	if err != nil {
		return nil, s.storeError("services.Labels", err)
	}
	return values, nil
}

// Sensors lists the numeric fields recorded in measurement.
func (s *ActivityService) Sensors(ctx context.Context, measurement string) ([]string, error) {
	if s.catalog == nil {
		return nil, fmt.Errorf("catalog not configured")
	}
	if strings.TrimSpace(measurement) == "" {
		return nil, utils.NewAppError("services.Sensors", "measurement is required", utils.ErrInvalidInput)
	}
	values, err := s.catalog.FieldKeys(ctx, measurement)
	if err != nil {
		return nil, s.storeError("services.Sensors", err)
	}
	return values, nil
}

// Classifiers lists every trainable kind in name order.
func (s *ActivityService) Classifiers() []ClassifierInfo {
	if s.pipeline == nil {
		return nil
	}
	kinds := s.pipeline.Registry().All()
	out := make([]ClassifierInfo, 0, len(kinds))
	for _, k := range kinds {
		params := make(map[string]models.ParamKind, len(k.Params))
		for name, kind := range k.Params {
			params[name] = kind
		}
		out = append(out, ClassifierInfo{Name: k.Name, Params: params})
	}
	return out
}

// Preprocessors lists the supported windowed aggregations.
func (s *ActivityService) Preprocessors() []string {
	return engine.Preprocessors()
}

// Train returns the compiled classifier for req.
func (s *ActivityService) Train(ctx context.Context, req models.TrainingRequest) (models.Artifact, error) {
	if s.pipeline == nil {
		return models.Artifact{}, fmt.Errorf("pipeline not configured")
	}

	s.logger.Debug("Train called",
		slog.String("dataset", req.Dataset),
		slog.String("model.name", req.Classifier),
		slog.Any("labels", req.Labels),
	)

	start := time.Now()
	artifact, err := s.pipeline.Train(ctx, req)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveTraining(duration, metrics.OutcomeError)
		s.logger.Warn("training request failed", slog.String("dataset", req.Dataset), slog.String("model.name", req.Classifier), slog.Any("error", err))
		return models.Artifact{}, err
	}
	s.latencies.Observe(duration)
	metrics.ObserveTraining(duration, metrics.OutcomeSuccess)
	if total := s.latencies.Total(); total%20 == 0 {
		p95 := s.latencies.Percentile(95)
		s.logger.Info("training latency", slog.Duration("p95", p95), slog.Int("samples", s.latencies.Count()))
	}

	return artifact, nil
}

// Healthy pings the store.
func (s *ActivityService) Healthy(ctx context.Context) error {
	if s.catalog == nil {
		return fmt.Errorf("catalog not configured")
	}
	return s.catalog.Ping(ctx)
}

// LatencyP95 returns the current p95 training latency.
func (s *ActivityService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}

func (s *ActivityService) storeError(op string, err error) error {
	s.logger.Error("store discovery failed", slog.String("op", op), slog.Any("error", err))
	return utils.NewAppError(op, "store discovery failed", fmt.Errorf("%w: %v", utils.ErrStoreUnavailable, err))
}
