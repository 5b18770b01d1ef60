package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// loopEvents counts bus events handled by the event loop.
	loopEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patchbay_loop_events_total",
		Help: "Bus events handled by the event loop, by kind",
	}, []string{"kind"})

	// liveViews tracks the number of graph views currently built.
	liveViews = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "patchbay_live_views",
		Help: "Graph views (studio and rooms) currently mirrored",
	})
)
