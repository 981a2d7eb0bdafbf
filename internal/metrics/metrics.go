package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorldBankAPICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "latamstats_worldbank_api_calls_total",
			Help: "Total World Bank API calls",
		},
		[]string{"endpoint", "indicator", "status"},
	)

	WorldBankAPILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "latamstats_worldbank_api_latency_seconds",
			Help:    "World Bank API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "indicator"},
	)

	ObservationsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "latamstats_observations_fetched_total",
			Help: "Total non-null observations parsed from API responses",
		},
		[]string{"indicator"},
	)

	ObservationsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "latamstats_observations_dropped_total",
			Help: "Observations dropped while parsing, by reason",
		},
		[]string{"indicator", "reason"},
	)

	ValidationFlags = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "latamstats_validation_flags_total",
			Help: "Observations flagged by plausibility checks",
		},
		[]string{"indicator", "flag"},
	)

	IndicatorFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "latamstats_indicator_failures_total",
			Help: "Indicators that contributed no column to the merged table",
		},
		[]string{"indicator"},
	)

	MergedCountries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "latamstats_merged_countries",
			Help: "Number of countries in the last merged table",
		},
	)
)

// WriteTextfile writes the default registry in the text exposition format, for
// pickup by a node_exporter textfile collector after a one-shot run.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
