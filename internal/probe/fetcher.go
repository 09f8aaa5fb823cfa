// Package probe implements the four-check probe pipeline: accessibility,
// form-structure analysis, anti-bot detection, and selector validation.
package probe

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// PageResponse is the raw outcome of fetching a submission page.
type PageResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	FinalURL   string
	Duration   time.Duration
}

// PageFetcher retrieves submission pages with Colly. Unlike a crawler it
// revisits the same URLs every cycle and keeps 4xx/5xx bodies, because an
// error page is still evidence for the anti-bot scan.
type PageFetcher struct {
	userAgent     string
	timeout       time.Duration
	maxBodyBytes  int64
	baseCollector *colly.Collector
}

// NewPageFetcher builds a PageFetcher.
func NewPageFetcher(userAgent string, timeout time.Duration, maxBodyBytes int64) *PageFetcher {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit(), colly.IgnoreRobotsTxt())
	c.ParseHTTPErrorResponse = true
	c.WithTransport(newHTTPTransport())
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PageFetcher{
		userAgent:     userAgent,
		timeout:       timeout,
		maxBodyBytes:  maxBodyBytes,
		baseCollector: c,
	}
}

// Fetch executes a single GET and returns the response, whatever its status.
// The error return is reserved for transport-level failure.
func (f *PageFetcher) Fetch(ctx context.Context, url string) (PageResponse, error) {
	var (
		result   PageResponse
		fetchErr error
	)
	start := time.Now()

	collector := f.baseCollector.Clone()
	collector.ParseHTTPErrorResponse = true
	collector.IgnoreRobotsTxt = true
	collector.AllowURLRevisit = true
	if f.userAgent != "" {
		collector.UserAgent = f.userAgent
	}
	if f.maxBodyBytes > 0 {
		collector.MaxBodySize = int(f.maxBodyBytes)
	}
	collector.SetRequestTimeout(f.timeout)

	collector.OnResponse(func(r *colly.Response) {
		result = PageResponse{
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			FinalURL:   r.Request.URL.String(),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= 400 {
			// HTTP-level failure still carries a usable response.
			result = PageResponse{
				StatusCode: r.StatusCode,
				Headers:    r.Headers.Clone(),
				Body:       append([]byte(nil), r.Body...),
				FinalURL:   r.Request.URL.String(),
				Duration:   time.Since(start),
			}
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return PageResponse{}, fmt.Errorf("page fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return PageResponse{}, fmt.Errorf("page fetch failed: %w", fetchErr)
		}
		if result.StatusCode == 0 && err != nil {
			return PageResponse{}, fmt.Errorf("page visit failed: %w", err)
		}
		return result, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
