package table

import "github.com/prometheus/client_golang/prometheus"

var TablesCreated = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "etch",
	Subsystem: "table_manager",
	Name:      "tables_created",
})

var RecordsInserted = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "etch",
	Subsystem: "table_manager",
	Name:      "records_inserted",
}, []string{"table"})

var ShardRollovers = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "etch",
	Subsystem: "table_manager",
	Name:      "shard_rollovers",
}, []string{"table"})

var IndexLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "etch",
	Subsystem: "table_manager",
	Name:      "index_lookups",
}, []string{"result"})

var ShardScanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Namespace: "etch",
	Subsystem: "table_manager",
	Name:      "shard_scan_seconds",
	Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
})

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		TablesCreated,
		RecordsInserted,
		ShardRollovers,
		IndexLookups,
		ShardScanDuration,
	}
}
