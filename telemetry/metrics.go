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
	FramesReceived      prometheus.Counter
	FrameDecodeFailures prometheus.Counter
	KernelRequests      prometheus.Counter
	EventsRelayed       prometheus.Counter
	EventsDropped       prometheus.Counter
	SlackPostsSucceeded prometheus.Counter
	SlackPostsFailed    prometheus.Counter
	ChannelProvisions   prometheus.Counter
	WebhookRequests     prometheus.Counter

	// Histograms (seconds)
	SlackPostDuration prometheus.Observer

	// Gauges
	LinkUpGauge prometheus.Gauge // 1=connected,0=down
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		FramesReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_kernel_frames_total", Help: "Frames received on the kernel link"})
		FrameDecodeFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_kernel_frame_decode_failures_total", Help: "Kernel frames discarded because they failed to decode"})
		KernelRequests = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_kernel_requests_total", Help: "Requests sent to the kernel"})
		EventsRelayed = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_events_relayed_total", Help: "Network events delivered to Slack"})
		EventsDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_events_dropped_total", Help: "Network events dropped (unmapped target, delivery failure, unrecognized kind)"})
		SlackPostsSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_slack_posts_succeeded_total", Help: "Slack chat.postMessage calls that succeeded"})
		SlackPostsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_slack_posts_failed_total", Help: "Slack chat.postMessage calls that failed after any retry"})
		ChannelProvisions = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_slack_channel_provisions_total", Help: "Slack channels auto-created after channel_not_found"})
		WebhookRequests = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_webhook_requests_total", Help: "Inbound Slack webhook requests"})
		SlackPostDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "bridge_slack_post_duration_seconds", Help: "Slack post duration seconds", Buckets: prometheus.DefBuckets})
		LinkUpGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "bridge_kernel_link_up", Help: "Kernel link connected=1 down=0"})
	})
}

// SetLinkUp sets gauge to 1 if the kernel link is connected else 0.
func SetLinkUp(up bool) { if LinkUpGauge != nil { if up { LinkUpGauge.Set(1) } else { LinkUpGauge.Set(0) } } }

// Nil-guarded increment helpers so library code works before Init (tests).
func IncFramesReceived()      { if FramesReceived != nil { FramesReceived.Inc() } }
func IncFrameDecodeFailures() { if FrameDecodeFailures != nil { FrameDecodeFailures.Inc() } }
func IncKernelRequests()      { if KernelRequests != nil { KernelRequests.Inc() } }
func IncEventsRelayed()       { if EventsRelayed != nil { EventsRelayed.Inc() } }
func IncEventsDropped()       { if EventsDropped != nil { EventsDropped.Inc() } }
func IncSlackPostSucceeded()  { if SlackPostsSucceeded != nil { SlackPostsSucceeded.Inc() } }
func IncSlackPostFailed()     { if SlackPostsFailed != nil { SlackPostsFailed.Inc() } }
func IncChannelProvisions()   { if ChannelProvisions != nil { ChannelProvisions.Inc() } }
func IncWebhookRequests()     { if WebhookRequests != nil { WebhookRequests.Inc() } }

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil { obs.Observe(d.Seconds()) }
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context { return context.WithValue(ctx, corrKey, id) }

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok { return s }
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" { return slog.Default().With(slog.String("corr", id)) }
	return slog.Default()
}
