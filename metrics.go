package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/julienschmidt/httprouter"
)

const metricsNamespace = "lighttrails"

var (
	connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "connected_clients",
		Help:      "Number of live canvas connections.",
	})

	messagesIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "messages_in_total",
		Help:      "Inbound messages by type, including malformed payloads.",
	}, []string{"type"})

	messagesOut = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "messages_out_total",
		Help:      "Messages successfully queued for delivery to clients.",
	})

	evictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "evictions_total",
		Help:      "Clients evicted because their send buffer overflowed.",
	})

	droppedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "rate_limited_total",
		Help:      "Drawing messages dropped by the per-connection rate limit.",
	})
)

func registerMetricsHandler(cfg *Config, mux *httprouter.Router) {
	mux.Handler("GET", cfg.prefix+"/metrics", promhttp.Handler())
}
