package server

import "github.com/prometheus/client_golang/prometheus"

var ConnectionsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "etch",
	Subsystem: "server",
	Name:      "connections_accepted",
})

var ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "etch",
	Subsystem: "server",
	Name:      "connections_active",
})

var ProtocolErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "etch",
	Subsystem: "server",
	Name:      "protocol_errors",
}, []string{"kind"})

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		ConnectionsAccepted,
		ConnectionsActive,
		ProtocolErrors,
	}
}
