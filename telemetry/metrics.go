// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	PollsTotal        prometheus.Counter
	PollFailures      *prometheus.CounterVec // label: class
	ActionsTotal      prometheus.Counter
	DuplicatesDropped prometheus.Counter
	EventsSent        *prometheus.CounterVec // label: adapter
	EventsDropped     *prometheus.CounterVec // label: adapter
	CatalogRefreshes  *prometheus.CounterVec // labels: catalog, result

	// Histograms (seconds)
	PollDuration prometheus.Observer

	// Gauges
	Subscribers   *prometheus.GaugeVec // label: adapter
	ActiveStreams prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollsTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_polls_total", Help: "Number of live chat fetches issued"})
		PollFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_poll_failures_total", Help: "Number of live chat fetches that failed"}, []string{"class"})
		ActionsTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_actions_total", Help: "Number of chat actions received from the provider"})
		DuplicatesDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_duplicates_dropped_total", Help: "Number of chat actions dropped as duplicates"})
		EventsSent = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_events_sent_total", Help: "Number of events queued to subscribers"}, []string{"adapter"})
		EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_events_dropped_total", Help: "Number of events dropped because a subscriber buffer was full"}, []string{"adapter"})
		CatalogRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{Name: "community_catalog_refresh_total", Help: "Community catalog refresh attempts"}, []string{"catalog", "result"})
		PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "relay_poll_duration_seconds", Help: "Live chat fetch duration seconds", Buckets: prometheus.DefBuckets})
		Subscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "relay_subscribers", Help: "Currently attached subscribers"}, []string{"adapter"})
		ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{Name: "relay_active_streams", Help: "Relays currently held by the hub"})
	})
}

// IncPollFailure counts a failed poll under its error class.
func IncPollFailure(class string) {
	if PollFailures != nil {
		PollFailures.WithLabelValues(class).Inc()
	}
}

// AddEventsSent records n events queued for subscribers of adapter.
func AddEventsSent(adapter string, n int) {
	if EventsSent != nil && n > 0 {
		EventsSent.WithLabelValues(adapter).Add(float64(n))
	}
}

// IncEventsDropped records one event a subscriber could not accept.
func IncEventsDropped(adapter string) {
	if EventsDropped != nil {
		EventsDropped.WithLabelValues(adapter).Inc()
	}
}

// AddSubscribers moves the subscriber gauge for adapter by delta.
func AddSubscribers(adapter string, delta int) {
	if Subscribers != nil {
		Subscribers.WithLabelValues(adapter).Add(float64(delta))
	}
}

// SetActiveStreams records the number of relays held by the hub.
func SetActiveStreams(n int) {
	if ActiveStreams != nil {
		ActiveStreams.Set(float64(n))
	}
}

// IncCatalogRefresh counts one catalog fetch outcome.
func IncCatalogRefresh(catalog string, ok bool) {
	if CatalogRefreshes == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	CatalogRefreshes.WithLabelValues(catalog, result).Inc()
}

// inc increments c if registered.
func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// IncPolls counts one issued fetch.
func IncPolls() { inc(PollsTotal) }

// IncActions counts one received action.
func IncActions() { inc(ActionsTotal) }

// IncDuplicates counts one deduplicated action.
func IncDuplicates() { inc(DuplicatesDropped) }

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
