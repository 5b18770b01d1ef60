package control

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// stateTransitions counts studio state transitions by target state.
	stateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patchbay_studio_state_transitions_total",
		Help: "Studio state transitions by target state",
	}, []string{"state"})

	// presenceProbes counts direct presence probes made by the poll.
	presenceProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patchbay_presence_probes_total",
		Help: "Direct daemon presence probes by result",
	}, []string{"result"})
)
