package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsExposure(t *testing.T) {
	ImportRuns.WithLabelValues("isbns").Inc()
	AddImportItems(1, 2, 0)
	IncProviderRequest("/books", "200")
	IncProviderRetry("/book")
	IncCoverRollback("deleted")
	AddActivities("inserted", 3)
	ObserveImportDuration(time.Now().Add(-1500 * time.Millisecond))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, m := range []string{
		"bookcatalog_import_runs_total",
		"bookcatalog_import_items_total",
		"bookcatalog_import_duration_seconds",
		"bookcatalog_provider_requests_total",
		"bookcatalog_provider_retries_total",
		"bookcatalog_cover_rollbacks_total",
		"bookcatalog_activities_total",
	} {
		assert.Contains(t, body, m)
	}
}
