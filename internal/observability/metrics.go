package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sam2",
		Name:      "inference_duration_seconds",
		Help:      "Duration of engine inference stages (encode, decode)",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	MasksProduced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sam2",
		Name:      "masks_produced_total",
		Help:      "Total number of decode calls, labelled by the selected candidate index",
	}, []string{"selected"})

	EmbeddingCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sam2",
		Name:      "embedding_cache_total",
		Help:      "Encode calls served from the embedding cache vs. computed",
	}, []string{"outcome"}) // "hit" | "miss"

	ModelDownloadBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sam2",
		Name:      "model_download_bytes_total",
		Help:      "Bytes of model artifacts loaded, from the network or from the cache",
	}, []string{"stage"}) // "network" | "cache"

	ProviderStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sam2",
		Name:      "provider_state_transitions_total",
		Help:      "Provider lifecycle state transitions",
	}, []string{"from", "to"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sam2",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sam2",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
