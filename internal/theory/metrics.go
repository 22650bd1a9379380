package theory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pkCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gsky_pk_cache_total",
		Help: "Power-spectrum cache lookups by branch and result",
	}, []string{"branch", "result"})

	pkBuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gsky_pk_build_duration_seconds",
		Help:    "Time to build one halo-model power spectrum",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	}, []string{"branch"})

	clEvaluations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gsky_cl_evaluations_total",
		Help: "Angular power spectra evaluated",
	})

	engineRebuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gsky_engine_rebuilds_total",
		Help: "Engine configurations built, by trigger and outcome",
	}, []string{"trigger", "result"})
)
