package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memex_api_requests_total",
		Help: "The total number of sync API requests per operation and outcome",
	}, []string{"operation", "outcome"})
	APIDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "memex_api_request_duration_seconds",
		Help:    "Duration of sync API operations in seconds",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"operation"})
	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memex_auth_failures_total",
		Help: "Failed Basic authentication attempts by reason",
	}, []string{"reason"})
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memex_last_modified_cache_lookups_total",
		Help: "Last-modified cache lookups by result",
	}, []string{"result"})
	BookmarksWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memex_bookmarks_written_total",
		Help: "Bookmarks created, replaced or deleted",
	}, []string{"action"})
)

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

func Handler() http.Handler {
	return promhttp.Handler()
}
