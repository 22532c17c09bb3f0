package prometheus

import (
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline counters exposed on /metrics.
var (
	EventsRecorded = promauto.NewCounterVec(prom.CounterOpts{
		Name: "touchlog_events_recorded_total",
		Help: "Events persisted, labelled by kind.",
	}, []string{"kind"})

	DuplicatesSuppressed = promauto.NewCounter(prom.CounterOpts{
		Name: "touchlog_scan_duplicates_suppressed_total",
		Help: "Direct-access scans suppressed by the dedup window.",
	})

	SchemaFallbacks = promauto.NewCounter(prom.CounterOpts{
		Name: "touchlog_schema_fallback_inserts_total",
		Help: "Inserts retried with the reduced column set after a missing-column error.",
	})

	RecordFailures = promauto.NewCounter(prom.CounterOpts{
		Name: "touchlog_record_failures_total",
		Help: "Events lost after both the full and reduced insert attempts failed.",
	})

	GeoLookupFailures = promauto.NewCounter(prom.CounterOpts{
		Name: "touchlog_geo_lookup_failures_total",
		Help: "Geo lookups that timed out, errored, or were rejected by the provider.",
	})
)
