package bus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Call result labels.
const (
	resultOK      = "ok"
	resultRemote  = "remote_error"
	resultTimeout = "timeout"
	resultClosed  = "closed"
)

var (
	// callResults counts completed calls by outcome.
	callResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patchbay_bus_calls_total",
		Help: "Bus calls by result",
	}, []string{"result"})

	// signalsReceived counts signals read from the connection by interface.
	signalsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patchbay_bus_signals_total",
		Help: "Bus signals received by interface",
	}, []string{"interface"})
)

// eventQueueDepth is the number of events read but not yet taken by the
// event loop.
var eventQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "patchbay_bus_event_queue_depth",
	Help: "Bus events waiting for the event loop",
})
