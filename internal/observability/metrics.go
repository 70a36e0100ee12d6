package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics registry and standard meters for the
// JSON-RPC client engine.
type Metrics struct {
	Registry           *prometheus.Registry
	CallDuration       *prometheus.HistogramVec
	CallsTotal         *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
	InboundTotal       *prometheus.CounterVec
	BytesProcessed     *prometheus.CounterVec
	ErrorsTotal        *prometheus.CounterVec
}

// NewMetrics creates a custom Prometheus registry with the standard
// triggerware client metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	callDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "triggerware_call_duration_seconds",
		Help:    "Duration of synchronous JSON-RPC calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})

	callsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "triggerware_calls_total",
		Help: "Total number of synchronous JSON-RPC calls.",
	}, []string{"method", "status"})

	notificationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "triggerware_notifications_total",
		Help: "Total number of JSON-RPC notifications by direction.",
	}, []string{"direction"})

	inboundTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "triggerware_inbound_messages_total",
		Help: "Total number of inbound messages routed, by kind.",
	}, []string{"kind"})

	bytesProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "triggerware_bytes_processed_total",
		Help: "Total bytes read from or written to the server connection.",
	}, []string{"direction"})

	errorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "triggerware_errors_total",
		Help: "Total number of errors.",
	}, []string{"operation", "type"})

	reg.MustRegister(callDuration, callsTotal, notificationsTotal,
		inboundTotal, bytesProcessed, errorsTotal)

	return &Metrics{
		Registry:           reg,
		CallDuration:       callDuration,
		CallsTotal:         callsTotal,
		NotificationsTotal: notificationsTotal,
		InboundTotal:       inboundTotal,
		BytesProcessed:     bytesProcessed,
		ErrorsTotal:        errorsTotal,
	}
}
