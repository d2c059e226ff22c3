package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var checksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "flywheel_ratelimit_checks_total",
	Help: "Rate limit checks by outcome (allowed or exceeded)",
}, []string{"outcome"})
