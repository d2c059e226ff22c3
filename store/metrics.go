package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var sweptEntries = promauto.NewCounter(prometheus.CounterOpts{
	Name: "flywheel_store_swept_entries_total",
	Help: "Expired fallback-store entries removed by the background sweep",
})
