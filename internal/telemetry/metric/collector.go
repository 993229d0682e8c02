package metric

import "github.com/prometheus/client_golang/prometheus"

// Collector samples process-local state at scrape time.
type Collector struct {
	lockoutsTracked *prometheus.Desc
	tracked         func() int
}

// NewCollector creates a collector. tracked reports how many users
// currently have MFA failures on record.
func NewCollector(tracked func() int) *Collector {
	return &Collector{
		lockoutsTracked: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "mfa", "failure_records"),
			"Users with recent MFA failures held by the attempt limiter",
			nil, nil,
		),
		tracked: tracked,
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.lockoutsTracked
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.lockoutsTracked, prometheus.GaugeValue, float64(c.tracked()))
}
