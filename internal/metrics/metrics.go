// Package metrics exposes prometheus collectors for the stageboard server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dalgonaburger/stageboard/internal/progress"
)

const namespace = "stageboard"

// HubStats is the part of the broadcast hub the collectors read.
type HubStats interface {
	Len() int
	Dropped() uint64
}

type Metrics struct {
	registry *prometheus.Registry

	submissions    *prometheus.CounterVec
	submitDuration *prometheus.HistogramVec
	observers      prometheus.Gauge
	totalUsers     prometheus.Gauge
	totalAttempts  prometheus.Gauge
}

var _ progress.Recorder = (*Metrics)(nil)

// New registers every collector on a fresh registry, so tests can build as
// many as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Submitted attempts by stage and outcome",
		}, []string{"stage", "outcome"}),
		submitDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submit_duration_seconds",
			Help:      "Time from receiving an attempt to returning its rank",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		observers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "observer_sessions",
			Help:      "Observer websocket sessions currently open",
		}),
		totalUsers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "users",
			Help:      "Registered users, refreshed by the stats job",
		}),
		totalAttempts: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "attempts",
			Help:      "Rows in the attempt log, refreshed by the stats job",
		}),
	}
}

// ObserveSubmit records one submission outcome. Unknown stage codes are
// folded into one label value to keep cardinality bounded.
func (m *Metrics) ObserveSubmit(stageCode, outcome string, elapsed time.Duration) {
	if outcome == "invalid" || outcome == "unknown_stage" {
		stageCode = "other"
	}
	m.submissions.WithLabelValues(stageCode, outcome).Inc()
	m.submitDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// WatchHub exports the hub's subscriber count and drop counter.
func (m *Metrics) WatchHub(h HubStats) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hub_subscribers",
			Help:      "Subscribers attached to the broadcast hub",
		}, func() float64 { return float64(h.Len()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_dropped_events_total",
			Help:      "Events dropped because a subscriber inbox was full",
		}, func() float64 { return float64(h.Dropped()) }),
	)
}

func (m *Metrics) ObserverOpened() { m.observers.Inc() }
func (m *Metrics) ObserverClosed() { m.observers.Dec() }

func (m *Metrics) SetTotals(t progress.Totals) {
	m.totalUsers.Set(float64(t.Users))
	m.totalAttempts.Set(float64(t.Attempts))
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
