package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StateSource is read on every scrape.
type StateSource interface {
	RoomSizes() map[string]int
}

// FailureSource reports the current consecutive failure count.
type FailureSource interface {
	ConsecutiveFailures() int
}

// StateCollector reports task and failure gauges computed at scrape time.
type StateCollector struct {
	state    StateSource
	failures FailureSource

	tasks       *prometheus.Desc
	rooms       *prometheus.Desc
	consecutive *prometheus.Desc
}

func NewStateCollector(state StateSource, failures FailureSource) *StateCollector {
	return &StateCollector{
		state:    state,
		failures: failures,
		tasks: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "tasks"),
			"Open tasks across all rooms.", nil, nil),
		rooms: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "rooms"),
			"Rooms holding a task list.", nil, nil),
		consecutive: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "transport", "consecutive_failures"),
			"Current consecutive transport failures.", nil, nil),
	}
}

func (c *StateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.tasks
	ch <- c.rooms
	ch <- c.consecutive
}

func (c *StateCollector) Collect(ch chan<- prometheus.Metric) {
	sizes := c.state.RoomSizes()
	total := 0
	for _, n := range sizes {
		total += n
	}
	ch <- prometheus.MustNewConstMetric(c.tasks, prometheus.GaugeValue, float64(total))
	ch <- prometheus.MustNewConstMetric(c.rooms, prometheus.GaugeValue, float64(len(sizes)))
	ch <- prometheus.MustNewConstMetric(c.consecutive, prometheus.GaugeValue, float64(c.failures.ConsecutiveFailures()))
}
