package gpu

import "github.com/prometheus/client_golang/prometheus"

var (
	gpuMemUsed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "inferd",
			Subsystem: "gpu",
			Name:      "memory_used_mb",
			Help:      "Used GPU memory in MB as last polled",
		},
		[]string{"gpu"},
	)

	gpuMemTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "inferd",
			Subsystem: "gpu",
			Name:      "memory_total_mb",
			Help:      "Total GPU memory in MB",
		},
		[]string{"gpu"},
	)

	gpuUtilization = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "inferd",
			Subsystem: "gpu",
			Name:      "utilization_pct",
			Help:      "GPU utilization percentage as last polled",
		},
		[]string{"gpu"},
	)

	gpuUsable = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "inferd",
			Subsystem: "gpu",
			Name:      "usable",
			Help:      "1 when the device accepts new placements, else 0",
		},
		[]string{"gpu"},
	)
)

func init() {
	prometheus.MustRegister(gpuMemUsed, gpuMemTotal, gpuUtilization, gpuUsable)
}

func (m *Monitor) updateMetrics(devices map[string]Device) {
	for id, d := range devices {
		gpuMemUsed.WithLabelValues(id).Set(float64(d.UsedMemMB))
		gpuMemTotal.WithLabelValues(id).Set(float64(d.TotalMemMB))
		gpuUtilization.WithLabelValues(id).Set(float64(d.UtilizationPct))
		if d.Usable {
			gpuUsable.WithLabelValues(id).Set(1)
		} else {
			gpuUsable.WithLabelValues(id).Set(0)
		}
	}
}
