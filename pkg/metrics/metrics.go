package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aliassync"

// Metrics holds the sync collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry  *prometheus.Registry
	syncs     *prometheus.CounterVec
	deletions *prometheus.CounterVec
	lookups   *prometheus.HistogramVec
	changed   prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		syncs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "syncs_total",
			Help:      "Login syncs by outcome",
		}, []string{"outcome"}),
		deletions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_deletions_total",
			Help:      "Identity deletions by status",
		}, []string{"status"}),
		lookups: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "directory_lookup_duration_seconds",
			Help:      "Directory lookup latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"server"}),
		changed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_set_changes_total",
			Help:      "Syncs where the directory identity set differed from the previous login",
		}),
	}
}

func (m *Metrics) ObserveSync(outcome string) {
	if m == nil {
		return
	}
	m.syncs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveDeletion(status string) {
	if m == nil {
		return
	}
	m.deletions.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveLookup(server string, d time.Duration) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(server).Observe(d.Seconds())
}

func (m *Metrics) ObserveChange() {
	if m == nil {
		return
	}
	m.changed.Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
