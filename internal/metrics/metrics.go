package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	CyclingServed      prometheus.Counter
	GeneratorAttempts  *prometheus.CounterVec
	GeneratorFailures  *prometheus.CounterVec
	GenerationLatency  *prometheus.HistogramVec
	Fallbacks          *prometheus.CounterVec
	StoreErrors        prometheus.Counter
	ReliableGenerators prometheus.Gauge
	ExpiredStories     prometheus.Counter
	EnqueuedJobs       prometheus.Counter
	ProcessedJobs      prometheus.Counter
	FailedJobs         prometheus.Counter
	RateLimited        prometheus.Counter
	UpdatesTotal       prometheus.Counter
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "orbnews",
				Name:      "cache_hits_total",
				Help:      "Story requests answered from the cache",
			}),
			CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "orbnews",
				Name:      "cache_misses_total",
				Help:      "Story requests that required generation",
			}),
			CyclingServed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "orbnews",
				Name:      "cycling_stories_served_total",
				Help:      "Stories served by the cycling selector",
			}),
			GeneratorAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "orbnews",
				Name:      "generator_attempts_total",
				Help:      "Generator invocations",
			}, []string{"generator"}),
			GeneratorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "orbnews",
				Name:      "generator_failures_total",
				Help:      "Generator invocations that produced no valid batch",
			}, []string{"generator", "reason"}),
			GenerationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "orbnews",
				Name:      "generation_duration_seconds",
				Help:      "Wall time of generator invocations",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			}, []string{"generator"}),
			Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "orbnews",
				Name:      "fallback_stories_total",
				Help:      "Static fallback stories produced",
			}, []string{"path"}),
			StoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "orbnews",
				Name:      "store_errors_total",
				Help:      "Story store operations that failed",
			}),
			ReliableGenerators: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "orbnews",
				Name:      "reliable_generators",
				Help:      "Generators that passed the last reliability probe",
			}),
			ExpiredStories: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "orbnews",
				Name:      "expired_stories_total",
				Help:      "Stories removed by retention sweeps",
			}),
			EnqueuedJobs: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "orbnews",
				Name:      "narration_enqueued_total",
				Help:      "Narration jobs enqueued to redis stream",
			}),
			ProcessedJobs: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "orbnews",
				Name:      "narration_processed_total",
				Help:      "Narration jobs successfully processed",
			}),
			FailedJobs: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "orbnews",
				Name:      "narration_failed_total",
				Help:      "Narration jobs failed during processing",
			}),
			RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "orbnews",
				Name:      "rate_limited_total",
				Help:      "Forced generation requests rejected by the rate limiter",
			}),
			UpdatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "orbnews",
				Name:      "telegram_updates_total",
				Help:      "Total telegram updates received",
			}),
		}
		prometheus.MustRegister(
			global.CacheHits,
			global.CacheMisses,
			global.CyclingServed,
			global.GeneratorAttempts,
			global.GeneratorFailures,
			global.GenerationLatency,
			global.Fallbacks,
			global.StoreErrors,
			global.ReliableGenerators,
			global.ExpiredStories,
			global.EnqueuedJobs,
			global.ProcessedJobs,
			global.FailedJobs,
			global.RateLimited,
			global.UpdatesTotal,
		)
	})
	return global
}
