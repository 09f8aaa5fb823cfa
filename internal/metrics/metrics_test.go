package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestHelpersAreNoOpsBeforeInit(t *testing.T) {
	// Must run before Init; no t.Parallel so ordering inside the package
	// stays deterministic.
	if probesTotal == nil {
		ObserveProbe("accessible", time.Second)
		ObserveBatch(5, time.Second)
		ObserveThrottle()
		ObserveAlertRaised("anti_bot", "high")
		SetActiveAlerts(3)
		ObserveAlertDeliveryFailure()
	}
}

func TestObserveAfterInit(t *testing.T) {
	Init()
	Init() // idempotent

	before := testutil.ToFloat64(probesTotal.WithLabelValues("accessible"))
	ObserveProbe("accessible", 200*time.Millisecond)
	after := testutil.ToFloat64(probesTotal.WithLabelValues("accessible"))
	require.Equal(t, before+1, after)

	throttleBefore := testutil.ToFloat64(batchThrottleTotal)
	ObserveThrottle()
	require.Equal(t, throttleBefore+1, testutil.ToFloat64(batchThrottleTotal))

	SetActiveAlerts(7)
	require.Equal(t, 7.0, testutil.ToFloat64(activeAlertsGauge))

	raisedBefore := testutil.ToFloat64(alertsRaisedTotal.WithLabelValues("anti_bot", "high"))
	ObserveAlertRaised("anti_bot", "high")
	require.Equal(t, raisedBefore+1, testutil.ToFloat64(alertsRaisedTotal.WithLabelValues("anti_bot", "high")))
}

func TestMiddlewareRecordsRequests(t *testing.T) {
	Init()

	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/directories/{directory_id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/directories/dir-1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	count := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(
		http.MethodGet, "/v1/directories/{directory_id}", "200",
	))
	require.GreaterOrEqual(t, count, 1.0)
}

func TestHandlerServesExposition(t *testing.T) {
	Init()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "dirwatch_")
}
