package vsync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values.
const (
	deltaAccepted = "accepted"
	deltaStale    = "stale"
	deltaRejected = "rejected"

	resyncApplied   = "applied"
	resyncDiscarded = "discarded"
	resyncFailed    = "failed"
)

var (
	// deltaResults counts incremental changes by gate and apply outcome.
	deltaResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patchbay_deltas_total",
		Help: "Incremental changes by collection and result",
	}, []string{"collection", "result"})

	// resyncResults counts snapshot fetches by outcome.
	resyncResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patchbay_resyncs_total",
		Help: "Snapshot resyncs by collection and result",
	}, []string{"collection", "result"})

	// collectionVersion tracks the last accepted version per collection.
	collectionVersion = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "patchbay_collection_version",
		Help: "Last accepted version by collection",
	}, []string{"collection"})
)
