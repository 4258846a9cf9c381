// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Chart metrics
	CandlesProcessed *prometheus.CounterVec
	ColumnsClosed    prometheus.Counter
	CandleErrors     *prometheus.CounterVec

	// Pattern metrics
	PatternsDetected   *prometheus.CounterVec
	AlertsSuppressed   *prometheus.CounterVec
	AlertsPublished    *prometheus.CounterVec
	PublishErrors      *prometheus.CounterVec
	TrackedInstruments prometheus.Gauge

	// Backtest metrics
	BacktestInstruments *prometheus.CounterVec
	BacktestResults     *prometheus.CounterVec
	BacktestDuration    prometheus.Histogram

	// Feed metrics
	FeedMessages   *prometheus.CounterVec
	FeedReconnects prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastCandleTimestamp    prometheus.Gauge
	LastSuccessfulBacktest prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pnf_signal_lab"
	}

	return &Metrics{
		CandlesProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chart",
			Name:      "candles_processed_total",
			Help:      "Total number of candles fed to chart builders by path",
		}, []string{"path"}),
		ColumnsClosed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chart",
			Name:      "columns_closed_total",
			Help:      "Total number of P&F columns closed by a reversal",
		}),
		CandleErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chart",
			Name:      "candle_errors_total",
			Help:      "Total number of rejected candles by reason",
		}, []string{"reason"}),

		PatternsDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pattern",
			Name:      "detected_total",
			Help:      "Total number of pattern matches by kind and direction",
		}, []string{"kind", "direction"}),
		AlertsSuppressed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pattern",
			Name:      "alerts_suppressed_total",
			Help:      "Total number of matches not delivered by reason",
		}, []string{"reason"}),
		AlertsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pattern",
			Name:      "alerts_published_total",
			Help:      "Total number of alerts delivered by sink",
		}, []string{"sink"}),
		PublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pattern",
			Name:      "publish_errors_total",
			Help:      "Total number of alert delivery failures by sink",
		}, []string{"sink"}),
		TrackedInstruments: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pattern",
			Name:      "tracked_instruments",
			Help:      "Number of instruments with a live chart",
		}),

		BacktestInstruments: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "instruments_total",
			Help:      "Total number of instruments processed by status",
		}, []string{"status"}),
		BacktestResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "results_total",
			Help:      "Total number of scored triggers by trigger",
		}, []string{"trigger"}),
		BacktestDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "run_duration_seconds",
			Help:      "Backtest run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),

		FeedMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "messages_total",
			Help:      "Total number of feed messages by outcome",
		}, []string{"outcome"}),
		FeedReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "reconnects_total",
			Help:      "Total number of feed reconnect attempts",
		}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastCandleTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_candle_timestamp",
			Help:      "Unix timestamp (ms) of the newest live candle",
		}),
		LastSuccessfulBacktest: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_backtest_timestamp",
			Help:      "Unix timestamp of last successful backtest run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordCandle records a processed candle on the given path ("live" or "backtest").
func RecordCandle(path string) {
	DefaultMetrics.CandlesProcessed.WithLabelValues(path).Inc()
}

// RecordCandleError records a rejected candle.
func RecordCandleError(reason string) {
	DefaultMetrics.CandleErrors.WithLabelValues(reason).Inc()
}

// RecordColumnsClosed adds closed columns.
func RecordColumnsClosed(n int) {
	DefaultMetrics.ColumnsClosed.Add(float64(n))
}

// RecordPattern records a detected pattern.
func RecordPattern(kind, direction string) {
	DefaultMetrics.PatternsDetected.WithLabelValues(kind, direction).Inc()
}

// RecordSuppressed records a match that was not delivered.
func RecordSuppressed(reason string) {
	DefaultMetrics.AlertsSuppressed.WithLabelValues(reason).Inc()
}

// RecordPublish records an alert delivery attempt.
func RecordPublish(sink string, err error) {
	if err != nil {
		DefaultMetrics.PublishErrors.WithLabelValues(sink).Inc()
		return
	}
	DefaultMetrics.AlertsPublished.WithLabelValues(sink).Inc()
}

// SetTrackedInstruments sets the live chart count.
func SetTrackedInstruments(n int) {
	DefaultMetrics.TrackedInstruments.Set(float64(n))
}

// UpdateLastCandle updates the newest live candle gauge.
func UpdateLastCandle(ts int64) {
	DefaultMetrics.LastCandleTimestamp.Set(float64(ts))
}

// RecordBacktestInstrument records an instrument outcome ("processed", "skipped", "errored").
func RecordBacktestInstrument(status string) {
	DefaultMetrics.BacktestInstruments.WithLabelValues(status).Inc()
}

// RecordBacktestRun records a finished run.
func RecordBacktestRun(trigger string, results int, durationSeconds float64, unixSeconds int64) {
	DefaultMetrics.BacktestResults.WithLabelValues(trigger).Add(float64(results))
	DefaultMetrics.BacktestDuration.Observe(durationSeconds)
	DefaultMetrics.LastSuccessfulBacktest.Set(float64(unixSeconds))
}

// RecordFeedMessage records a feed message outcome ("candle", "invalid", "ignored").
func RecordFeedMessage(outcome string) {
	DefaultMetrics.FeedMessages.WithLabelValues(outcome).Inc()
}

// RecordFeedReconnect records a reconnect attempt.
func RecordFeedReconnect() {
	DefaultMetrics.FeedReconnects.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
