package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/listforge/dirwatch/internal/catalog"
	"github.com/listforge/dirwatch/internal/monitor"
)

func newTestEngine() *Engine {
	return New(Config{Timeout: 5 * time.Second}, zap.NewNop())
}

func TestProbe_HealthyDirectory(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/submit" {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(submissionPage))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	record := catalog.DirectoryRecord{
		ID:            "dir-1",
		URL:           srv.URL,
		SubmissionURL: srv.URL + "/submit",
		FieldMapping: map[string]string{
			"name": "#site-name",
			"url":  "#site-url",
		},
	}

	result := newTestEngine().Probe(context.Background(), record)

	require.Equal(t, "dir-1", result.DirectoryID)
	require.Equal(t, monitor.Accessible, result.Accessibility.Status)
	require.Equal(t, http.StatusOK, result.Accessibility.HTTPStatus)
	require.True(t, result.Accessibility.Success())
	require.Positive(t, result.Accessibility.ResponseTime)

	require.True(t, result.Structure.OK())
	require.Equal(t, 1, result.Structure.FormCount)
	require.False(t, result.AntiBot.Detected)

	require.InDelta(t, 1.0, result.Selectors.Accuracy, 1e-9)
	require.False(t, result.Selectors.ConfigIssue)
	require.NotEmpty(t, result.Fingerprint)
	require.NotEmpty(t, result.PageBody)
}

func TestProbe_CaptchaWallOnSubmissionPage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/submit" {
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`<html><body><div class="g-recaptcha"></div>Access denied: complete the captcha.</body></html>`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	record := catalog.DirectoryRecord{
		ID:            "dir-1",
		URL:           srv.URL,
		SubmissionURL: srv.URL + "/submit",
		FieldMapping:  map[string]string{"name": "#site-name"},
	}

	result := newTestEngine().Probe(context.Background(), record)

	require.Equal(t, monitor.Accessible, result.Accessibility.Status, "homepage is still reachable")
	require.True(t, result.AntiBot.Detected)
	require.GreaterOrEqual(t, result.AntiBot.Score, 50)
	require.Equal(t, monitor.RiskHigh, result.AntiBot.RiskLevel)
	require.True(t, result.Structure.OK(), "an error page still parses")
	require.Zero(t, result.Selectors.Accuracy, "submission selectors resolve nothing on the wall page")
}

func TestProbe_UnreachableTargetIsDataNotError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	srv.Close()

	record := catalog.DirectoryRecord{
		ID:           "dir-1",
		URL:          srv.URL,
		FieldMapping: map[string]string{"name": "#site-name"},
	}

	result := newTestEngine().Probe(context.Background(), record)

	require.Equal(t, monitor.Inaccessible, result.Accessibility.Status)
	require.NotEmpty(t, result.Accessibility.Err)
	require.False(t, result.Accessibility.Success())
	require.Equal(t, "failed", result.Structure.Status)
	require.Empty(t, result.Fingerprint)
}

func TestProbe_ServerErrorKeepsHTTPStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	record := catalog.DirectoryRecord{
		ID:           "dir-1",
		URL:          srv.URL,
		FieldMapping: map[string]string{"name": "#site-name"},
	}

	result := newTestEngine().Probe(context.Background(), record)

	require.Equal(t, monitor.Inaccessible, result.Accessibility.Status)
	require.Equal(t, http.StatusServiceUnavailable, result.Accessibility.HTTPStatus)
	require.Empty(t, result.Accessibility.Err, "an HTTP failure is not a transport error")
}

func TestCheckAccessibility_HeadFallsBackToGet(t *testing.T) {
	t.Parallel()

	var sawGet bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		sawGet = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	out := newTestEngine().checkAccessibility(context.Background(), srv.URL)
	require.True(t, sawGet)
	require.Equal(t, monitor.Accessible, out.Status)
	require.Equal(t, http.StatusOK, out.HTTPStatus)
}

func TestCheckAccessibility_RecordsRedirect(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/new" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out := newTestEngine().checkAccessibility(context.Background(), srv.URL+"/old")
	require.Equal(t, monitor.Accessible, out.Status)
	require.True(t, out.Redirected)
	require.Equal(t, srv.URL+"/new", out.FinalURL)
}

func TestFetch_KeepsErrorResponseBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("<html><body>bot detected</body></html>"))
	}))
	defer srv.Close()

	fetcher := NewPageFetcher("", 5*time.Second, 0)
	page, err := fetcher.Fetch(context.Background(), srv.URL)
	require.NoError(t, err, "an error page is evidence, not a fetch failure")
	require.Equal(t, http.StatusForbidden, page.StatusCode)
	require.Contains(t, string(page.Body), "bot detected")
}
