package dashboard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HttpTotalRequests is the total number of http requests.
	HttpTotalRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_http_total_requests",
			Help: "Total number of http requests",
		},
		[]string{"path", "method", "status_code"},
	)

	// HttpRequestDuration is the duration of the http request.
	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "dashboard_http_request_duration",
			Help: "Duration of the http request",
		},
		[]string{"path", "method", "status_code"},
	)

	// socketClients is the number of connected dashboard sockets.
	socketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashboard_socket_clients",
			Help: "Number of connected dashboard sockets",
		},
	)

	// socketEvents is the number of events pushed to sockets by name.
	socketEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_socket_events_total",
			Help: "Total number of events pushed to dashboard sockets",
		},
		[]string{"event"},
	)
)
