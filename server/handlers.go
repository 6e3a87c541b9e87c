// Package server exposes the HTTP boundary of the bridge: the Slack
// webhook, health and readiness probes, and Prometheus metrics. It injects
// correlation IDs into request contexts for consistent logging.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/onnwee/slirck/bridge"
	"github.com/onnwee/slirck/telemetry"
)

// WebhookSink consumes decoded webhook payloads.
type WebhookSink interface {
	HandleSlack(ctx context.Context, in bridge.SlackInbound)
}

// LinkStatus reports kernel link liveness for the probes.
type LinkStatus interface {
	Connected() bool
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	translator WebhookSink
	link       LinkStatus

	// commandToken, when set, must match the token field of any payload
	// carrying a slash command. It is how unsafe commands like /raw are
	// kept to trusted callers.
	commandToken string
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(translator WebhookSink, link LinkStatus, commandToken string) *Handlers {
	return &Handlers{translator: translator, link: link, commandToken: commandToken}
}

// HandleWebhook receives one Slack payload. The response is always an empty
// success acknowledgement: the external service never observes internal
// outcomes.
func (h *Handlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	telemetry.IncWebhookRequests()

	if err := r.ParseForm(); err != nil {
		telemetry.LoggerWithCorr(r.Context()).Warn("unparseable webhook payload", slog.Any("err", err))
		w.WriteHeader(http.StatusOK)
		return
	}
	in := bridge.SlackInbound{
		UserID:      r.PostFormValue("user_id"),
		UserName:    r.PostFormValue("user_name"),
		Text:        r.PostFormValue("text"),
		ChannelName: r.PostFormValue("channel_name"),
		Command:     r.PostFormValue("command"),
	}
	if in.Command != "" && h.commandToken != "" && r.PostFormValue("token") != h.commandToken {
		telemetry.LoggerWithCorr(r.Context()).Warn("rejected command with bad token",
			slog.String("command", in.Command), slog.String("user", in.UserName))
		w.WriteHeader(http.StatusOK)
		return
	}
	h.translator.HandleSlack(r.Context(), in)
	w.WriteHeader(http.StatusOK)
}

// HandleHealthz responds to liveness probe requests by checking the kernel link.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if !h.link.Connected() {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests with detailed checks.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"kernel_link", func() error {
			if !h.link.Connected() {
				return fmt.Errorf("kernel link down")
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}
