package gateway

import "github.com/prometheus/client_golang/prometheus"

var (
	phaseTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llmgate",
			Subsystem: "chat",
			Name:      "phase_total",
			Help:      "Chat requests entering each lifecycle phase",
		},
		[]string{"phase"},
	)
	admissionRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "llmgate",
			Subsystem: "chat",
			Name:      "admission_rejected_total",
			Help:      "Chat requests rejected after waiting for a stream slot",
		},
	)
	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llmgate",
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Background job runs by job and result",
		},
		[]string{"job", "result"},
	)
)

func init() {
	prometheus.MustRegister(phaseTotal, admissionRejected, jobRuns)
}
