package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var connectAttempts = promauto.NewCounter(prometheus.CounterOpts{
	Name: "flywheel_connect_attempts_total",
	Help: "Number of handshake attempts against the remote store",
})

var fallbackTransitions = promauto.NewCounter(prometheus.CounterOpts{
	Name: "flywheel_fallback_transitions_total",
	Help: "Number of transitions into fallback mode",
})

var fallbackModeGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "flywheel_fallback_mode",
	Help: "Whether the client is in fallback mode (1) or not (0)",
})

var remoteOpFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "flywheel_remote_op_failures_total",
	Help: "Remote store operation failures by operation name",
}, []string{"op"})

var droppedPublishes = promauto.NewCounter(prometheus.CounterOpts{
	Name: "flywheel_dropped_publishes_total",
	Help: "Messages dropped by Publish while not connected",
})

var droppedDeliveries = promauto.NewCounter(prometheus.CounterOpts{
	Name: "flywheel_dropped_deliveries_total",
	Help: "Received messages discarded because the client was not connected",
})
