package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Item outcomes recorded by the import pipeline
const (
	OutcomeAdded     = "added"
	OutcomeDuplicate = "duplicate"
	OutcomeError     = "error"
)

var (
	ImportRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bookcatalog_import_runs_total",
		Help: "Total import runs by kind (isbns, author, publisher)",
	}, []string{"kind"})

	ImportItems = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bookcatalog_import_items_total",
		Help: "Imported identifiers by outcome",
	}, []string{"outcome"})

	ImportDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bookcatalog_import_duration_seconds",
		Help:    "Import run duration in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	ProviderRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bookcatalog_provider_requests_total",
		Help: "Requests sent to the metadata provider by endpoint and status",
	}, []string{"endpoint", "status"})

	ProviderRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bookcatalog_provider_retries_total",
		Help: "Retry attempts against the metadata provider",
	}, []string{"endpoint"})

	CoverRollbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bookcatalog_cover_rollbacks_total",
		Help: "Compensating cover deletes by result (deleted, deferred, failed)",
	}, []string{"result"})

	ActivitiesEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bookcatalog_activities_total",
		Help: "Activity records by outcome (inserted, duplicate, invalid, failed)",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		ImportRuns,
		ImportItems,
		ImportDuration,
		ProviderRequests,
		ProviderRetries,
		CoverRollbacks,
		ActivitiesEmitted,
	)
}

// ObserveImportDuration records a run duration
func ObserveImportDuration(start time.Time) {
	ImportDuration.Observe(time.Since(start).Seconds())
}

// AddImportItems adds a run's final counters
func AddImportItems(added, duplicates, errors int) {
	ImportItems.WithLabelValues(OutcomeAdded).Add(float64(added))
	ImportItems.WithLabelValues(OutcomeDuplicate).Add(float64(duplicates))
	ImportItems.WithLabelValues(OutcomeError).Add(float64(errors))
}

func IncProviderRequest(endpoint, status string) {
	ProviderRequests.WithLabelValues(endpoint, status).Inc()
}

func IncProviderRetry(endpoint string) { ProviderRetries.WithLabelValues(endpoint).Inc() }

func IncCoverRollback(result string) { CoverRollbacks.WithLabelValues(result).Inc() }

func AddActivities(outcome string, n int) {
	if n > 0 {
		ActivitiesEmitted.WithLabelValues(outcome).Add(float64(n))
	}
}
