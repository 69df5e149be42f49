package metric

import "github.com/prometheus/client_golang/prometheus"

// Stats is a point-in-time view of engine state.
type Stats struct {
	ActiveTasks    int
	PendingLevels  int
	RetainedLevels int
}

// Collector samples engine gauges on every scrape.
type Collector struct {
	source func() Stats

	activeTasks    *prometheus.Desc
	pendingLevels  *prometheus.Desc
	retainedLevels *prometheus.Desc
}

// NewCollector creates a collector reading from source.
func NewCollector(source func() Stats) *Collector {
	return &Collector{
		source: source,
		activeTasks: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "active_tasks"),
			"Slot operations queued or running.", nil, nil),
		pendingLevels: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "pending_levels"),
			"Loaded snapshot levels waiting for their level to stream in.", nil, nil),
		retainedLevels: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "retained_levels"),
			"Captured sections of streamed-out levels kept for the next save.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeTasks
	ch <- c.pendingLevels
	ch <- c.retainedLevels
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source()
	ch <- prometheus.MustNewConstMetric(c.activeTasks, prometheus.GaugeValue, float64(s.ActiveTasks))
	ch <- prometheus.MustNewConstMetric(c.pendingLevels, prometheus.GaugeValue, float64(s.PendingLevels))
	ch <- prometheus.MustNewConstMetric(c.retainedLevels, prometheus.GaugeValue, float64(s.RetainedLevels))
}
