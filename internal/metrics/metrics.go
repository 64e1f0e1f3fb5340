// Package metrics exposes Prometheus metrics for the bot.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "asmith"

const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds every collector on its own registry. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	commands          *prometheus.CounterVec
	snapshotSaves     *prometheus.CounterVec
	snapshotLoads     *prometheus.CounterVec
	transportFailures *prometheus.CounterVec
	syncs             prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Chat commands handled, by command and outcome.",
		}, []string{"command", "outcome"}),
		snapshotSaves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_saves_total",
			Help:      "Snapshot writes by result.",
		}, []string{"result"}),
		snapshotLoads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_loads_total",
			Help:      "Snapshot loads by result.",
		}, []string{"result"}),
		transportFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_failures_total",
			Help:      "Chat transport failures by kind.",
		}, []string{"kind"}),
		syncs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "syncs_total",
			Help:      "Successful sync cycles.",
		}),
	}
}

// Register adds extra collectors, such as a StateCollector.
func (m *Metrics) Register(cs ...prometheus.Collector) error {
	if m == nil {
		return nil
	}
	for _, c := range cs {
		if err := m.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) CommandHandled(command, outcome string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, outcome).Inc()
}

func (m *Metrics) SnapshotSaved(err error) {
	if m == nil {
		return
	}
	m.snapshotSaves.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) SnapshotLoaded(err error) {
	if m == nil {
		return
	}
	m.snapshotLoads.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) TransportFailed(kind string) {
	if m == nil {
		return
	}
	m.transportFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) SyncSucceeded() {
	if m == nil {
		return
	}
	m.syncs.Inc()
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
