package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pool metrics
	PoolCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swap_engine_pool_count",
		Help: "Total number of pools in the current snapshot",
	})

	StablePoolCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swap_engine_stable_pool_count",
		Help: "Number of stable pools in the current snapshot",
	})

	PoolRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_engine_pool_refreshes_total",
			Help: "Total number of pool universe fetches from the ledger",
		},
		[]string{"status"},
	)

	PoolRefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swap_engine_pool_refresh_duration_seconds",
		Help:    "Duration of a full pool universe fetch",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	// Cache metrics
	PoolCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swap_engine_pool_cache_hits_total",
		Help: "Total number of pool snapshot cache hits",
	})

	PoolCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swap_engine_pool_cache_misses_total",
		Help: "Total number of pool snapshot cache misses",
	})

	TokenCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swap_engine_token_cache_size",
		Help: "Current number of entries in token metadata cache",
	})

	GraphRebuilds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swap_engine_graph_rebuilds_total",
		Help: "Total number of routing graph rebuilds",
	})

	// Estimate metrics
	EstimateRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_engine_estimate_requests_total",
			Help: "Total number of route estimations",
		},
		[]string{"swap_mode", "status"},
	)

	EstimateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swap_engine_estimate_duration_seconds",
			Help:    "Route estimation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"swap_mode"},
	)

	SplitIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swap_engine_split_iterations",
		Help:    "Number of iterations in split optimization",
		Buckets: []float64{1, 2, 3, 5, 7, 10, 15, 20},
	})

	PoolsEvaluated = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swap_engine_pools_evaluated",
		Help:    "Number of pools evaluated per estimation",
		Buckets: []float64{1, 2, 3, 5, 10, 20, 50},
	})

	// Session metrics
	ActiveSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swap_engine_active_sessions",
			Help: "Number of live quote sessions",
		},
		[]string{"kind"},
	)

	SessionPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_engine_session_passes_total",
			Help: "Total number of session estimation passes",
		},
		[]string{"trigger", "status"},
	)

	StaleEstimates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swap_engine_stale_estimates_total",
		Help: "Total number of estimation results discarded as superseded",
	})

	// Execution metrics
	SwapSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_engine_swap_submissions_total",
			Help: "Total number of swap submissions",
		},
		[]string{"swap_mode", "status"},
	)

	SwapSubmitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swap_engine_swap_submit_duration_seconds",
			Help:    "Swap submission duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"swap_mode"},
	)

	OutcomeResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_engine_outcome_resolutions_total",
			Help: "Total number of transaction outcome resolutions",
		},
		[]string{"result"},
	)

	// RPC metrics
	RPCRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_engine_rpc_requests_total",
			Help: "Total number of ledger RPC requests",
		},
		[]string{"method", "status"},
	)

	RPCDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swap_engine_rpc_duration_seconds",
			Help:    "Ledger RPC request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method"},
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_engine_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swap_engine_http_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
