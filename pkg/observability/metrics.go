package observability

import (
	"github.com/aretw0/rewind/pkg/undo"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for history activity.
type Metrics struct {
	events  *prometheus.CounterVec
	depth   *prometheus.GaugeVec
	current *prometheus.GaugeVec
	changes prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg (if not nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rewind_history_events_total",
				Help: "Total number of history lifecycle events",
			},
			[]string{"kind"},
		),
		depth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rewind_history_depth",
				Help: "Number of entries held by a session history",
			},
			[]string{"session"},
		),
		current: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rewind_history_current",
				Help: "Index of the last applied entry of a session history",
			},
			[]string{"session"},
		),
		changes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rewind_entry_changes",
				Help:    "Number of changes grouped in each recorded entry",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.events, m.depth, m.current, m.changes)
	}
	return m
}

// Collectors returns every collector, e.g. to register them with a custom registry later.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.events, m.depth, m.current, m.changes}
}

// Listener returns an undo.Listener that records the events of history under session.
func (m *Metrics) Listener(session string, history *undo.Manager) undo.Listener {
	return undo.ListenerFunc(func(ev undo.Event) {
		m.events.WithLabelValues(ev.Kind.String()).Inc()
		if ev.Kind == undo.EventAdded && ev.Subject != nil {
			m.changes.Observe(float64(size(ev.Subject)))
		}
		m.depth.WithLabelValues(session).Set(float64(history.Len()))
		m.current.WithLabelValues(session).Set(float64(history.Current()))
	})
}

// Forget drops the gauges of a closed session.
func (m *Metrics) Forget(session string) {
	m.depth.DeleteLabelValues(session)
	m.current.DeleteLabelValues(session)
}

func size(u undo.Undoable) int {
	if c, ok := u.(*undo.Composite); ok {
		return c.Len()
	}
	return 1
}
