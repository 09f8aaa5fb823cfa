package probe

import (
	"context"
	"net/http"
	"time"

	"github.com/listforge/dirwatch/internal/monitor"
)

// checkAccessibility issues a HEAD request against the directory homepage,
// falling back to GET when the server rejects HEAD outright. Transport
// failure is recorded as inaccessible with the error text; an HTTP error
// status is data and still yields a result.
func (e *Engine) checkAccessibility(ctx context.Context, url string) monitor.AccessibilityResult {
	reqCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := e.doAccess(reqCtx, http.MethodHead, url)
	if err == nil && (resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented) {
		drain(resp)
		resp, err = e.doAccess(reqCtx, http.MethodGet, url)
	}
	elapsed := time.Since(start)

	if err != nil {
		return monitor.AccessibilityResult{
			Status:       monitor.Inaccessible,
			ResponseTime: elapsed,
			Err:          err.Error(),
		}
	}
	defer drain(resp)

	finalURL := url
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	status := monitor.Accessible
	if resp.StatusCode >= 400 {
		status = monitor.Inaccessible
	}
	return monitor.AccessibilityResult{
		Status:       status,
		HTTPStatus:   resp.StatusCode,
		ResponseTime: elapsed,
		Redirected:   finalURL != url,
		FinalURL:     finalURL,
	}
}

func (e *Engine) doAccess(ctx context.Context, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)
	return e.accessClient.Do(req)
}

func drain(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		resp.Body.Close() //nolint:errcheck // nothing useful to do with a close error here
	}
}
