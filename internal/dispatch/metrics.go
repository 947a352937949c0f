package dispatch

import "github.com/prometheus/client_golang/prometheus"

var RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "etch",
	Subsystem: "dispatch",
	Name:      "requests_total",
}, []string{"command", "code"})

var RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "etch",
	Subsystem: "dispatch",
	Name:      "request_duration_seconds",
	Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 9),
}, []string{"command"})

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		RequestsTotal,
		RequestDuration,
	}
}
