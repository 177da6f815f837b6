package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-activity/internal/cache"
	"github.com/miradorstack/mirador-activity/internal/metrics"
	"github.com/miradorstack/mirador-activity/internal/models"
	"github.com/miradorstack/mirador-activity/internal/query"
	"github.com/miradorstack/mirador-activity/internal/registry"
	"github.com/miradorstack/mirador-activity/internal/repo"
	"github.com/miradorstack/mirador-activity/internal/utils"
)

const (
	// DefaultLabelKey is the tag holding the ground-truth activity of each sample.
	DefaultLabelKey = "Traininglabel"
	// DefaultTimeColumn is the column the store reports timestamps in.
	DefaultTimeColumn = "time"
	// DefaultRequestTimeout bounds retrieval, training and compilation of one request.
	DefaultRequestTimeout = 30 * time.Second
)

// Store defines the time-series retrieval behaviour used by the pipeline.
type Store interface {
	Query(ctx context.Context, q query.Query) (repo.Result, error)
}

// Options tunes the pipeline. Zero values select the defaults.
type Options struct {
	LabelKey         string
	TimeColumn       string
	ClassName        string
	RequestTimeout   time.Duration
	SamplingInterval time.Duration
	FallbackInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.LabelKey == "" {
		o.LabelKey = DefaultLabelKey
	}
	if o.TimeColumn == "" {
		o.TimeColumn = DefaultTimeColumn
	}
	if o.ClassName == "" {
		o.ClassName = DefaultClassName
	}
	if o.RequestTimeout < 0 {
		o.RequestTimeout = 0
	}
	return o
}

// Pipeline turns training requests into compiled classifiers, training each distinct request at
// most once while its artifact stays cached.
type Pipeline struct {
	logger       *slog.Logger
	store        Store
	registry     *registry.Registry
	results      *cache.ResultCache
	preprocessor *Preprocessor
	trainer      *Trainer
	compiler     *Compiler
	opts         Options
}

// NewPipeline constructs a pipeline. A nil registry, cache or compiler selects the default one.
func NewPipeline(
	logger *slog.Logger,
	store Store,
	reg *registry.Registry,
	results *cache.ResultCache,
	compiler *Compiler,
	opts Options,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = registry.New()
	}
	if results == nil {
		results, _ = cache.NewResultCache(cache.DefaultSize)
	}
	if compiler == nil {
		compiler, _ = NewCompiler("")
	}
	opts = opts.withDefaults()

	return &Pipeline{
		logger:       logger,
		store:        store,
		registry:     reg,
		results:      results,
		preprocessor: NewPreprocessor(logger, opts.SamplingInterval, opts.FallbackInterval),
		trainer:      NewTrainer(logger),
		compiler:     compiler,
		opts:         opts,
	}
}

// Registry returns the classifier catalog the pipeline trains from.
func (p *Pipeline) Registry() *registry.Registry {
	return p.registry
}

// CacheStats reports result cache activity.
func (p *Pipeline) CacheStats() cache.Stats {
	return p.results.Stats()
}

// LabelKey returns the tag key labels are filtered and trained on.
func (p *Pipeline) LabelKey() string {
	return p.opts.LabelKey
}

// Train returns the compiled classifier for req, training it on a cache miss. The request is
// validated and its params typed before anything is retrieved.
func (p *Pipeline) Train(ctx context.Context, req models.TrainingRequest) (models.Artifact, error) {
	if p.store == nil {
		return models.Artifact{}, utils.NewAppError("engine.Pipeline.Train", "store not configured", utils.ErrStoreUnavailable)
	}
	if err := req.Validate(); err != nil {
		return models.Artifact{}, err
	}
	kind, err := p.registry.Get(req.Classifier)
	if err != nil {
		return models.Artifact{}, err
	}
	params, err := kind.ParseParams(req.Params)
	if err != nil {
		return models.Artifact{}, err
	}

	if p.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.RequestTimeout)
		defer cancel()
	}

	key := req.Key()
	artifact, hit, err := p.results.GetOrCompute(ctx, key, func() (out models.Artifact, fnErr error) {
		// Runs on a goroutine of its own, out of reach of the HTTP recoverer.
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("training panicked", slog.String("model.name", kind.Name), slog.Any("panic", r))
				out, fnErr = models.Artifact{}, utils.NewAppError("engine.Pipeline.compute", "training aborted", fmt.Errorf("%w: panic: %v", utils.ErrTrainingFailed, r))
			}
		}()
		// Shared by every caller waiting on key, so no single caller's cancellation applies.
		computeCtx := context.WithoutCancel(ctx)
		if p.opts.RequestTimeout > 0 {
			var cancel context.CancelFunc
			computeCtx, cancel = context.WithTimeout(computeCtx, p.opts.RequestTimeout)
			defer cancel()
		}
		return p.compute(computeCtx, req, kind, params)
	})
	if err != nil {
		return models.Artifact{}, err
	}

	p.logger.Debug("classifier served",
		slog.String("dataset", req.Dataset),
		slog.String("model.name", kind.Name),
		slog.Bool("cache.hit", hit),
	)
	return artifact, nil
}

func (p *Pipeline) compute(ctx context.Context, req models.TrainingRequest, kind registry.Kind, params models.Params) (models.Artifact, error) {
	const op = "engine.Pipeline.compute"
	logger := p.logger.With(slog.String("dataset", req.Dataset), slog.String("model.name", kind.Name))

	fields := append(append([]string(nil), req.Sensors...), p.opts.LabelKey)
	q, err := query.Build(req.Labels, fields, req.Dataset, p.opts.LabelKey)
	if err != nil {
		return models.Artifact{}, err
	}

	start := time.Now()
	result, err := p.store.Query(ctx, q)
	metrics.ObserveStage("retrieve", time.Since(start))
	if err != nil {
		if timeout := p.deadline(ctx, "retrieve"); timeout != nil {
			return models.Artifact{}, timeout
		}
		return models.Artifact{}, utils.NewAppError(op, "query store", fmt.Errorf("%w: %v", utils.ErrStoreUnavailable, err))
	}
	logger.Debug("data retrieved", slog.Int("data.rows", len(result.Values)))

	start = time.Now()
	features, labels, err := Shape(result, p.opts.LabelKey, p.opts.TimeColumn)
	if err != nil {
		return models.Artifact{}, err
	}
	if req.HasPreprocessing() {
		window := time.Duration(*req.Window) * time.Millisecond
		if features, err = p.preprocessor.Apply(features, req.Preprocessor, window); err != nil {
			return models.Artifact{}, err
		}
	}
	metrics.ObserveStage("shape", time.Since(start))
	if err := p.deadline(ctx, "shape"); err != nil {
		return models.Artifact{}, err
	}

	start = time.Now()
	model, err := p.trainer.Train(ctx, kind, features, labels, params)
	metrics.ObserveStage("train", time.Since(start))
	if err != nil {
		if timeout := p.deadline(ctx, "train"); timeout != nil {
			return models.Artifact{}, timeout
		}
		logger.Warn("training failed", slog.Any("error", err))
		return models.Artifact{}, err
	}
	metrics.ObserveTrainingRows(features.Len())
	if err := p.deadline(ctx, "train"); err != nil {
		return models.Artifact{}, err
	}

	start = time.Now()
	artifact, err := p.compiler.Compile(model, p.opts.ClassName, features.Columns)
	metrics.ObserveStage("compile", time.Since(start))
	if err != nil {
		logger.Error("compilation failed", slog.Any("error", err))
		return models.Artifact{}, err
	}

	logger.Info("classifier trained",
		slog.Int("data.samples", features.Len()),
		slog.Int("data.features", len(features.Columns)),
		slog.Any("model.classes", artifact.Classes),
		slog.Int("artifact.bytes", len(artifact.Source)),
	)
	return artifact, nil
}

// deadline returns a Timeout error once ctx has run past the request timeout.
func (p *Pipeline) deadline(ctx context.Context, stage string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return utils.NewAppError("engine.Pipeline."+stage, fmt.Sprintf("request exceeded %s", p.opts.RequestTimeout), fmt.Errorf("%w: %v", utils.ErrTimeout, ctx.Err()))
	}
	return nil
}
