package probe

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/listforge/dirwatch/internal/monitor"
)

// Weights score the independent anti-bot signal categories. The defaults are
// a starting configuration tuned by hand, not a calibrated model; operators
// can override every value.
type Weights struct {
	Captcha     int
	Edge        int
	RateLimit   int
	JSChallenge int
	Denial      int

	MediumThreshold int
	HighThreshold   int
}

// DefaultWeights returns the stock scoring configuration.
func DefaultWeights() Weights {
	return Weights{
		Captcha:         30,
		Edge:            20,
		RateLimit:       25,
		JSChallenge:     15,
		Denial:          35,
		MediumThreshold: 25,
		HighThreshold:   50,
	}
}

var (
	captchaMarkers = [][]byte{
		[]byte("captcha"),
		[]byte("recaptcha"),
		[]byte("g-recaptcha"),
		[]byte("hcaptcha"),
		[]byte("arkoselabs"),
	}
	edgeMarkers = [][]byte{
		[]byte("checking your browser"),
		[]byte("attention required"),
		[]byte("cf-browser-verification"),
		[]byte("__cf_chl"),
		[]byte("ddos protection by"),
	}
	jsChallengeMarkers = [][]byte{
		[]byte("enable javascript"),
		[]byte("javascript is required"),
		[]byte("javascript is disabled"),
		[]byte("please turn on javascript"),
	}
	denialMarkers = [][]byte{
		[]byte("access denied"),
		[]byte("request blocked"),
		[]byte("bot detected"),
		[]byte("automated requests"),
		[]byte("unusual traffic"),
	}
	edgeServerNames = []string{"cloudflare", "akamaighost", "sucuri"}
)

// detectAntiBot scans response headers and the sanitized body for bot
// defenses. Each category contributes at most once; the summed score maps to
// a risk level.
func detectAntiBot(page PageResponse, sanitizedBody []byte, weights Weights) (out monitor.AntiBotResult) {
	defer func() {
		if r := recover(); r != nil {
			out = monitor.AntiBotResult{RiskLevel: monitor.RiskLow}
		}
	}()

	body := bytes.ToLower(sanitizedBody)
	score := 0
	var signals []monitor.Signal

	if ev := firstMarker(body, captchaMarkers); ev != "" {
		score += weights.Captcha
		signals = append(signals, monitor.Signal{Category: "captcha", Evidence: ev})
	}
	if ev := edgeEvidence(page.Headers, body); ev != "" {
		score += weights.Edge
		signals = append(signals, monitor.Signal{Category: "edge_challenge", Evidence: ev})
	}
	if ev := rateLimitEvidence(page); ev != "" {
		score += weights.RateLimit
		signals = append(signals, monitor.Signal{Category: "rate_limit", Evidence: ev})
	}
	if ev := firstMarker(body, jsChallengeMarkers); ev != "" {
		score += weights.JSChallenge
		signals = append(signals, monitor.Signal{Category: "js_challenge", Evidence: ev})
	}
	if ev := denialEvidence(page, body); ev != "" {
		score += weights.Denial
		signals = append(signals, monitor.Signal{Category: "denial", Evidence: ev})
	}

	level := monitor.RiskLow
	switch {
	case score >= weights.HighThreshold:
		level = monitor.RiskHigh
	case score >= weights.MediumThreshold:
		level = monitor.RiskMedium
	}

	return monitor.AntiBotResult{
		Detected:  len(signals) > 0,
		RiskLevel: level,
		Score:     score,
		Signals:   signals,
	}
}

func firstMarker(body []byte, markers [][]byte) string {
	for _, marker := range markers {
		if bytes.Contains(body, marker) {
			return string(marker)
		}
	}
	return ""
}

func edgeEvidence(headers http.Header, body []byte) string {
	if headers != nil {
		if headers.Get("CF-Ray") != "" {
			return "header:cf-ray"
		}
		server := strings.ToLower(headers.Get("Server"))
		for _, name := range edgeServerNames {
			if strings.Contains(server, name) {
				return "server:" + name
			}
		}
	}
	return firstMarker(body, edgeMarkers)
}

func rateLimitEvidence(page PageResponse) string {
	if page.StatusCode == http.StatusTooManyRequests {
		return "status:429"
	}
	if page.Headers == nil {
		return ""
	}
	if v := page.Headers.Get("Retry-After"); v != "" {
		return "header:retry-after=" + v
	}
	for _, h := range []string{"X-RateLimit-Remaining", "X-RateLimit-Limit", "RateLimit-Remaining"} {
		if page.Headers.Get(h) != "" {
			return fmt.Sprintf("header:%s", strings.ToLower(h))
		}
	}
	return ""
}

func denialEvidence(page PageResponse, body []byte) string {
	if ev := firstMarker(body, denialMarkers); ev != "" {
		return ev
	}
	if page.StatusCode == http.StatusForbidden {
		return "status:403"
	}
	return ""
}
