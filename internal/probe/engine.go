package probe

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/listforge/dirwatch/internal/catalog"
	"github.com/listforge/dirwatch/internal/monitor"
)

// Config controls Engine behavior.
type Config struct {
	Timeout      time.Duration
	UserAgent    string
	PerHostRPS   float64
	PerHostBurst int
	MaxBodyBytes int64
	Weights      Weights
}

// Engine executes one full probe of a directory: accessibility against the
// homepage and a submission-page fetch feeding structure, anti-bot, and
// selector analysis. It holds no shared mutable state across probes.
type Engine struct {
	cfg          Config
	fetcher      *PageFetcher
	limiter      *HostLimiter
	accessClient *http.Client
	logger       *zap.Logger
}

// New constructs an Engine.
func New(cfg Config, logger *zap.Logger) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = monitor.DefaultUserAgent
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:     cfg,
		fetcher: NewPageFetcher(cfg.UserAgent, cfg.Timeout, cfg.MaxBodyBytes),
		limiter: NewHostLimiter(cfg.PerHostRPS, cfg.PerHostBurst),
		accessClient: &http.Client{
			Transport: newHTTPTransport(),
			Timeout:   cfg.Timeout,
		},
		logger: logger,
	}
}

// Probe runs the four checks for one directory record. The accessibility
// check and the submission-page fetch run concurrently; the three analysis
// passes share the fetched page. Failures of any check are isolated into
// that check's result and never abort the siblings.
func (e *Engine) Probe(ctx context.Context, record catalog.DirectoryRecord) monitor.ProbeResult {
	result := monitor.ProbeResult{
		DirectoryID: record.ID,
		StartedAt:   time.Now().UTC(),
	}

	var (
		wg      sync.WaitGroup
		page    PageResponse
		pageErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		result.Accessibility = e.probeAccess(ctx, record.URL)
	}()
	go func() {
		defer wg.Done()
		page, pageErr = e.fetchTarget(ctx, record.Target())
	}()
	wg.Wait()

	if pageErr != nil {
		result.Structure = monitor.StructureResult{Status: "failed", Err: pageErr.Error()}
		result.AntiBot = detectAntiBot(page, nil, e.cfg.Weights)
		result.Selectors = summarizeSelectors(nil, len(record.FieldMapping))
		e.logger.Debug("submission page fetch failed",
			zap.String("directory_id", record.ID),
			zap.String("url", record.Target()),
			zap.Error(pageErr),
		)
		return result
	}

	doc, clean, err := sanitize(page.Body)
	if err != nil {
		result.Structure = monitor.StructureResult{Status: "failed", Err: fmt.Sprintf("sanitize: %v", err)}
		result.AntiBot = detectAntiBot(page, page.Body, e.cfg.Weights)
		result.Selectors = summarizeSelectors(nil, len(record.FieldMapping))
		return result
	}

	result.Structure = analyzeStructure(doc, record.FieldMapping)
	result.AntiBot = detectAntiBot(page, clean, e.cfg.Weights)
	result.Selectors = summarizeSelectors(result.Structure.Fields, len(record.FieldMapping))
	result.PageBody = clean
	result.Fingerprint = fingerprint(result.Structure.Forms)
	return result
}

func (e *Engine) probeAccess(ctx context.Context, url string) monitor.AccessibilityResult {
	if err := e.limiter.Wait(ctx, url); err != nil {
		return monitor.AccessibilityResult{Status: monitor.Inaccessible, Err: err.Error()}
	}
	return e.checkAccessibility(ctx, url)
}

func (e *Engine) fetchTarget(ctx context.Context, url string) (PageResponse, error) {
	if err := e.limiter.Wait(ctx, url); err != nil {
		return PageResponse{}, err
	}
	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	return e.fetcher.Fetch(fetchCtx, url)
}
