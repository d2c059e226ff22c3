package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "flywheeld"

var (
	wsSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name:      "active_subscribers",
		Namespace: namespace,
		Help:      "Current number of active WebSocket subscribers",
	})

	wsMessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name:      "ws_messages_sent_total",
		Namespace: namespace,
		Help:      "Total number of messages streamed to WebSocket subscribers",
	})

	wsMessagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name:      "ws_messages_dropped_total",
		Namespace: namespace,
		Help:      "Messages dropped because a subscriber could not keep up",
	})

	publishedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name:      "published_messages_total",
		Namespace: namespace,
		Help:      "Messages accepted on the publish endpoint",
	})

	ingressThrottled = promauto.NewCounter(prometheus.CounterOpts{
		Name:      "ingress_throttled_total",
		Namespace: namespace,
		Help:      "API requests rejected by the per-IP ingress limiter",
	})
)
