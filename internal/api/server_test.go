package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/listforge/dirwatch/internal/catalog"
	"github.com/listforge/dirwatch/internal/health"
	"github.com/listforge/dirwatch/internal/monitor"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newTestServer(t *testing.T) (*Server, *health.Store) {
	t.Helper()
	cat, err := catalog.New([]catalog.DirectoryRecord{
		{ID: "dir-1", Name: "Directory One", URL: "https://one.example"},
		{ID: "dir-2", Name: "Directory Two", URL: "https://two.example"},
	})
	require.NoError(t, err)

	store := health.NewStore(cat, fixedClock{now: time.Unix(1700000000, 0).UTC()})
	return NewServer(store, cat, zap.NewNop()), store
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestListDirectories(t *testing.T) {
	t.Parallel()

	s, store := newTestServer(t)
	store.Update("dir-1", monitor.ProbeResult{
		DirectoryID: "dir-1",
		Accessibility: monitor.AccessibilityResult{
			Status:       monitor.Accessible,
			HTTPStatus:   200,
			ResponseTime: 250 * time.Millisecond,
		},
		Structure: monitor.StructureResult{Status: "ok", FormCount: 1},
		Selectors: monitor.SelectorResult{Accuracy: 1},
	})

	rec := doRequest(t, s, http.MethodGet, "/v1/directories")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count       int `json:"count"`
		Directories []struct {
			ID            string  `json:"id"`
			Name          string  `json:"name"`
			Status        string  `json:"status"`
			ResponseTime  float64 `json:"response_time_ms"`
			LastCheckedAt string  `json:"last_checked_at"`
		} `json:"directories"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 2, body.Count)
	require.Equal(t, "dir-1", body.Directories[0].ID)
	require.Equal(t, "Directory One", body.Directories[0].Name)
	require.Equal(t, "accessible", body.Directories[0].Status)
	require.InDelta(t, 250, body.Directories[0].ResponseTime, 1e-9)
	require.NotEmpty(t, body.Directories[0].LastCheckedAt)
	require.Equal(t, "pending", body.Directories[1].Status)
	require.Empty(t, body.Directories[1].LastCheckedAt)
}

func TestGetDirectory(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/v1/directories/dir-2")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Record struct {
			DirectoryID string `json:"directory_id"`
			Status      string `json:"status"`
		} `json:"record"`
		Directory struct {
			Name string `json:"name"`
		} `json:"directory"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "dir-2", body.Record.DirectoryID)
	require.Equal(t, "pending", body.Record.Status)
	require.Equal(t, "Directory Two", body.Directory.Name)
}

func TestGetDirectory_NotFound(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/v1/directories/nope")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "directory not found", body["error"])
}

func TestGetStatus(t *testing.T) {
	t.Parallel()

	s, store := newTestServer(t)
	store.SetAlerts("dir-1", []monitor.Alert{{
		ID: "a1", DirectoryID: "dir-1", Type: monitor.AlertAntiBot, Severity: monitor.SeverityHigh,
	}})

	rec := doRequest(t, s, http.MethodGet, "/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var agg health.Aggregate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agg))
	require.Equal(t, 2, agg.TotalDirectories)
	require.Equal(t, 1, agg.ActiveAlertCount)
}

func TestGetAlerts(t *testing.T) {
	t.Parallel()

	s, store := newTestServer(t)
	store.SetAlerts("dir-2", []monitor.Alert{{
		ID: "a1", DirectoryID: "dir-2", Type: monitor.AlertSlowResponse, Severity: monitor.SeverityMedium,
	}})

	rec := doRequest(t, s, http.MethodGet, "/v1/alerts")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count  int             `json:"count"`
		Alerts []monitor.Alert `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	require.Equal(t, "dir-2", body.Alerts[0].DirectoryID)
}

func TestMetricsEndpointServed(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
}
