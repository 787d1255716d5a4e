package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "duochat",
		Name:      "ws_connections_active",
		Help:      "Open live channels.",
	})

	messagesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "duochat",
		Name:      "messages_relayed_total",
		Help:      "Messages persisted and fanned out.",
	})

	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "duochat",
		Name:      "events_dropped_total",
		Help:      "Live events dropped because a channel was full or closed.",
	})
)
