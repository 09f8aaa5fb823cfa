// Package metrics exposes Prometheus collectors for the monitor service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	probesTotal            *prometheus.CounterVec
	probeDurationSeconds   *prometheus.HistogramVec
	batchCostPerDirectory  prometheus.Histogram
	batchThrottleTotal     prometheus.Counter
	alertsRaisedTotal      *prometheus.CounterVec
	activeAlertsGauge      prometheus.Gauge
	alertDeliveryFailTotal prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		probesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dirwatch_probes_total",
				Help: "Total directory probes, labeled by accessibility status.",
			},
			[]string{"status"},
		)

		probeDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dirwatch_probe_duration_seconds",
				Help:    "Histogram of full probe durations, labeled by status.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
			},
			[]string{"status"},
		)

		batchCostPerDirectory = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dirwatch_batch_cost_per_directory_seconds",
				Help:    "Amortized wall-clock cost of a batch per directory.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		)

		batchThrottleTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dirwatch_batch_throttle_total",
				Help: "Times the resource governor doubled the cycle interval.",
			},
		)

		alertsRaisedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dirwatch_alerts_raised_total",
				Help: "Alerts raised or escalated, labeled by type and severity.",
			},
			[]string{"type", "severity"},
		)

		activeAlertsGauge = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "dirwatch_active_alerts",
				Help: "Currently active alerts across the catalog.",
			},
		)

		alertDeliveryFailTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dirwatch_alert_delivery_failures_total",
				Help: "Alert deliveries that returned an error.",
			},
		)

		initHTTP()
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveProbe records one completed probe.
func ObserveProbe(status string, duration time.Duration) {
	if probesTotal == nil {
		return
	}
	probesTotal.WithLabelValues(status).Inc()
	probeDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
}

// ObserveBatch records the amortized cost of one batch.
func ObserveBatch(batchSize int, elapsed time.Duration) {
	if batchCostPerDirectory == nil || batchSize <= 0 {
		return
	}
	batchCostPerDirectory.Observe(elapsed.Seconds() / float64(batchSize))
}

// ObserveThrottle counts a governor-imposed interval doubling.
func ObserveThrottle() {
	if batchThrottleTotal == nil {
		return
	}
	batchThrottleTotal.Inc()
}

// ObserveAlertRaised counts a newly raised or escalated alert.
func ObserveAlertRaised(alertType, severity string) {
	if alertsRaisedTotal == nil {
		return
	}
	alertsRaisedTotal.WithLabelValues(alertType, severity).Inc()
}

// SetActiveAlerts updates the active alert gauge.
func SetActiveAlerts(n int) {
	if activeAlertsGauge == nil {
		return
	}
	activeAlertsGauge.Set(float64(n))
}

// ObserveAlertDeliveryFailure counts a failed sink delivery.
func ObserveAlertDeliveryFailure() {
	if alertDeliveryFailTotal == nil {
		return
	}
	alertDeliveryFailTotal.Inc()
}
