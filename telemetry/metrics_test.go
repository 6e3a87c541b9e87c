package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCountersInitialized(t *testing.T) {
	Init()

	counters := map[string]prometheus.Counter{
		"FramesReceived":      FramesReceived,
		"FrameDecodeFailures": FrameDecodeFailures,
		"KernelRequests":      KernelRequests,
		"EventsRelayed":       EventsRelayed,
		"EventsDropped":       EventsDropped,
		"SlackPostsSucceeded": SlackPostsSucceeded,
		"SlackPostsFailed":    SlackPostsFailed,
		"ChannelProvisions":   ChannelProvisions,
		"WebhookRequests":     WebhookRequests,
	}
	for name, c := range counters {
		if c == nil {
			t.Errorf("%s counter not initialized", name)
		}
	}
	if SlackPostDuration == nil {
		t.Error("SlackPostDuration histogram not initialized")
	}
	if LinkUpGauge == nil {
		t.Error("LinkUpGauge not initialized")
	}
}

func TestIncHelpersCount(t *testing.T) {
	Init()

	before := counterValue(t, FramesReceived)
	IncFramesReceived()
	IncFramesReceived()
	after := counterValue(t, FramesReceived)
	if after-before != 2 {
		t.Errorf("FramesReceived delta = %v, want 2", after-before)
	}
}

func TestSetLinkUp(t *testing.T) {
	Init()

	SetLinkUp(true)
	if v := gaugeValue(t, LinkUpGauge); v != 1 {
		t.Errorf("LinkUpGauge = %v, want 1", v)
	}
	SetLinkUp(false)
	if v := gaugeValue(t, LinkUpGauge); v != 0 {
		t.Errorf("LinkUpGauge = %v, want 0", v)
	}
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	Init()

	d := TimeFunc(SlackPostDuration, func() { time.Sleep(5 * time.Millisecond) })
	if d < 5*time.Millisecond {
		t.Errorf("TimeFunc returned %v, want at least 5ms", d)
	}
}

func TestCorrelationRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("empty context correlation = %q, want empty", got)
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Errorf("correlation = %q, want abc-123", got)
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	return m.GetGauge().GetValue()
}
