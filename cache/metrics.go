package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "flywheel_cache_hits_total",
	Help: "Cache hits by layer (local or store)",
}, []string{"layer"})

var cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
	Name: "flywheel_cache_misses_total",
	Help: "Cache lookups that found nothing in any layer",
})
