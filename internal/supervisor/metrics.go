package supervisor

import "github.com/prometheus/client_golang/prometheus"

var (
	statusGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "llmgate",
			Subsystem: "supervisor",
			Name:      "status",
			Help:      "Model server supervision state (1 for the current status)",
		},
		[]string{"status"},
	)

	spawnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llmgate",
			Subsystem: "supervisor",
			Name:      "spawns_total",
			Help:      "Model server launch attempts by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(statusGauge, spawnsTotal)
}

func observeStatus(s Status) {
	for _, st := range []Status{StatusNotStarted, StatusStarting, StatusReady, StatusUnreachable} {
		v := 0.0
		if st == s {
			v = 1
		}
		statusGauge.WithLabelValues(string(st)).Set(v)
	}
}
