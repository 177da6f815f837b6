package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels trainings that produced an artifact.
	OutcomeSuccess = "success"
	// OutcomeError labels failed trainings (validation, store, fit or compile issues).
	OutcomeError = "error"
)

var (
	trainingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_activity",
			Name:      "trainings_total",
			Help:      "Total number of classifier requests handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	trainingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirador_activity",
			Name:      "training_seconds",
			Help:      "End-to-end classifier request latency in seconds.",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mirador_activity",
			Name:      "stage_seconds",
			Help:      "Latency of individual pipeline stages in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	trainingRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirador_activity",
			Name:      "training_rows",
			Help:      "Number of samples a classifier was fitted on.",
			Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
		},
	)
)

// Register attaches mirador-activity collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		trainingsTotal,
		trainingDurationSeconds,
		stageDurationSeconds,
		trainingRows,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveTraining records a request duration and outcome label.
func ObserveTraining(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	trainingsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	trainingDurationSeconds.Observe(duration.Seconds())
}

// ObserveStage records how long a single pipeline stage took.
func ObserveStage(stage string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	stageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveTrainingRows records the size of a training set.
func ObserveTrainingRows(rows int) {
	trainingRows.Observe(float64(rows))
}

// CacheStats is the subset of result cache counters exported to Prometheus.
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Entries   int
}

// RegisterCache exports result cache counters read from stats at scrape time.
func RegisterCache(reg prometheus.Registerer, stats func() CacheStats) error {
	collectors := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "mirador_activity",
			Name:      "cache_hits_total",
			Help:      "Classifier requests answered from the result cache.",
		}, func() float64 { return float64(stats().Hits) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "mirador_activity",
			Name:      "cache_misses_total",
			Help:      "Classifier requests that had to be trained.",
		}, func() float64 { return float64(stats().Misses) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "mirador_activity",
			Name:      "cache_evictions_total",
			Help:      "Compiled classifiers evicted to respect the cache bound.",
		}, func() float64 { return float64(stats().Evictions) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "mirador_activity",
			Name:      "cache_entries",
			Help:      "Number of compiled classifiers currently cached.",
		}, func() float64 { return float64(stats().Entries) }),
	}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			return err
		}
	}
	return nil
}
