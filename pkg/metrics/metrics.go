// Package metrics defines the Prometheus collectors recording harness
// outcomes and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for a harness run.
type Metrics struct {
	ScenariosTotal       *prometheus.CounterVec
	ScenarioDuration     *prometheus.HistogramVec
	IndexBuildDuration   prometheus.Histogram
	PostingsIndexedTotal prometheus.Counter
	TermsVerifiedTotal   prometheus.Counter
	EnumsVerifiedTotal   *prometheus.CounterVec
	SeekStateReplays     prometheus.Counter
	MismatchesTotal      *prometheus.CounterVec
	WorkersActive        prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates all collectors and registers them with reg. A nil reg gets a
// fresh private registry so independent runs never collide.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		ScenariosTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postings_scenarios_total",
				Help: "Scenario runs by name and result (pass, fail).",
			},
			[]string{"scenario", "result"},
		),
		ScenarioDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "postings_scenario_duration_seconds",
				Help:    "Scenario wall time in seconds.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"scenario"},
		),
		IndexBuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "postings_index_build_duration_seconds",
				Help:    "Time spent replaying the corpus through the write session.",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
		PostingsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "postings_indexed_total",
				Help: "Postings (term, document) pairs written by the index builder.",
			},
		),
		TermsVerifiedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "postings_terms_verified_total",
				Help: "Term visits completed by scenario workers.",
			},
		),
		EnumsVerifiedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postings_enums_verified_total",
				Help: "Enumerators verified against the reference, by flavor.",
			},
			[]string{"flavor"},
		),
		SeekStateReplays: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "postings_seek_state_replays_total",
				Help: "Cursor positionings made from a captured seek state.",
			},
		),
		MismatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postings_mismatches_total",
				Help: "Divergences from the reference by diverging quantity.",
			},
			[]string{"what"},
		),
		WorkersActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "postings_workers_active",
				Help: "Scenario workers currently running.",
			},
		),
		gatherer: reg,
	}

	reg.MustRegister(
		m.ScenariosTotal,
		m.ScenarioDuration,
		m.IndexBuildDuration,
		m.PostingsIndexedTotal,
		m.TermsVerifiedTotal,
		m.EnumsVerifiedTotal,
		m.SeekStateReplays,
		m.MismatchesTotal,
		m.WorkersActive,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler for m's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
