package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wiki_events_received_total",
		Help: "Total number of relevant change events received per language.",
	}, []string{"lang"})
	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wiki_events_dropped_total",
		Help: "Total number of events dropped by subscriber backpressure.",
	})
	parseErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wiki_parse_errors_total",
		Help: "Total number of malformed stream messages dropped during decoding.",
	})
	statsUpserts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wiki_stats_upserts_total",
		Help: "Total number of successful daily-stats upserts.",
	})
	statsUpsertErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wiki_stats_upsert_errors_total",
		Help: "Total number of daily-stats upserts that failed and were swallowed.",
	})
	sweepRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wiki_sweeps_total",
		Help: "Total number of retention sweep executions.",
	})
	activeStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wiki_active_streams",
		Help: "Number of live upstream stream connections.",
	})

	collectorsOnce sync.Once
)

// Init registers default Go/process collectors. It is safe to call multiple times.
func Init() {
	collectorsOnce.Do(func() {
		registerCollector(collectors.NewGoCollector())
		registerCollector(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

func registerCollector(c prometheus.Collector) {
	if err := prometheus.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return
		}
		panic(err)
	}
}

// IncEventsReceived increments the per-language received counter.
func IncEventsReceived(lang string) {
	eventsReceived.WithLabelValues(lang).Inc()
}

// IncEventsDropped increments the backpressure drop counter.
func IncEventsDropped() {
	eventsDropped.Inc()
}

// IncParseErrors increments the malformed-message counter.
func IncParseErrors() {
	parseErrors.Inc()
}

// IncStatsUpserts increments the successful upsert counter.
func IncStatsUpserts() {
	statsUpserts.Inc()
}

// IncStatsUpsertErrors increments the swallowed upsert failure counter.
func IncStatsUpsertErrors() {
	statsUpsertErrors.Inc()
}

// IncSweepRuns increments the sweep execution counter.
func IncSweepRuns() {
	sweepRuns.Inc()
}

// SetActiveStreams records the current number of live upstream connections.
func SetActiveStreams(n int) {
	activeStreams.Set(float64(n))
}
