package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	startsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "manager",
		Name:      "starts_total",
		Help:      "Total backend starts that reached ready",
	})

	evictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "manager",
		Name:      "evictions_total",
		Help:      "Total idle instances evicted to free GPU memory",
	})

	restartsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "manager",
		Name:      "restarts_total",
		Help:      "Total automatic restart attempts after backend failures",
	})

	placementFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "manager",
		Name:      "placement_failures_total",
		Help:      "Total placements that failed even after eviction",
	})
)

func init() {
	prometheus.MustRegister(startsTotal, evictionsTotal, restartsTotal, placementFailures)
}
