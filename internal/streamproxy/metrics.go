package streamproxy

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeCompleted     = "completed"
	outcomeDisconnected  = "client_disconnected"
	outcomeProtocolError = "protocol_error"
	outcomeUpstreamError = "upstream_error"
	outcomeOpenFailed    = "open_failed"
)

var (
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "llmgate",
			Subsystem: "stream",
			Name:      "sessions_active",
			Help:      "Number of open upstream streaming sessions",
		},
	)
	chunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "llmgate",
			Subsystem: "stream",
			Name:      "chunks_total",
			Help:      "Chunks relayed from the model server",
		},
	)
	outcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llmgate",
			Subsystem: "stream",
			Name:      "outcomes_total",
			Help:      "Streaming sessions by terminal outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(sessionsActive, chunksTotal, outcomesTotal)
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return outcomeCompleted
	case IsClientDisconnected(err):
		return outcomeDisconnected
	case IsUpstreamProtocolError(err):
		return outcomeProtocolError
	default:
		return outcomeUpstreamError
	}
}
