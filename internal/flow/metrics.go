package flow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// outcome is one of ok, invalid, remote_error, transport_error.
	flowRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowchat_flow_requests_total",
		Help: "Total number of flow run requests by outcome",
	}, []string{"outcome"})

	flowRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "flowchat_flow_request_duration_seconds",
		Help:    "Flow run request latency",
		Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	// kind is one of update, close, parse_error, transport_error.
	streamEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowchat_stream_events_total",
		Help: "Stream events received from flow streams by kind",
	}, []string{"kind"})
)
