// Command slirck bridges IRC networks (via an upstream "kernel" process
// that owns the real connections) into Slack channels and back. It:
//   - Loads configuration and initializes structured logging.
//   - Connects to the kernel over a newline-delimited JSON-RPC stream and
//     relays decoded network events into Slack posts.
//   - Exposes an HTTP server for the Slack webhook plus /healthz, /readyz,
//     and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM; losing the kernel link beyond the
// reconnect budget is fatal.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/slirck/avatar"
	"github.com/onnwee/slirck/bridge"
	"github.com/onnwee/slirck/config"
	"github.com/onnwee/slirck/relay"
	"github.com/onnwee/slirck/server"
	"github.com/onnwee/slirck/slack"
	"github.com/onnwee/slirck/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("slirck", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Wire the relay: codec, membership, avatars, Slack client, translator,
	// kernel link.
	codec, err := bridge.NewCodec(cfg.Bindings)
	if err != nil {
		slog.Error("channel bindings invalid", slog.Any("err", err))
		os.Exit(1)
	}

	var avatars avatar.Resolver
	switch cfg.AvatarStrategy {
	case "directory":
		avatars, err = avatar.NewDirectory(cfg.AvatarDirectoryURL, cfg.AvatarDirectoryID, cfg.AvatarDirectoryKey, cfg.AvatarCacheSize)
		if err != nil {
			slog.Error("avatar directory init failed", slog.Any("err", err))
			os.Exit(1)
		}
	default:
		avatars = avatar.Gravatar{}
	}
	slog.Info("avatar resolver configured", slog.String("strategy", cfg.AvatarStrategy))

	translator := &bridge.Translator{
		Codec:        codec,
		Slack:        slack.New(cfg.SlackAPIURL, cfg.SlackToken, cfg.SlackUsername),
		Avatars:      avatars,
		Members:      bridge.NewMembership(),
		Bindings:     cfg.Bindings,
		Operator:     cfg.SlackUsername,
		BroadcastID:  cfg.BroadcastID,
		NickservPass: cfg.NickservPass,
	}

	kernelAddr := fmt.Sprintf("%s:%d", cfg.KernelHost, cfg.KernelPort)
	link := relay.New(kernelAddr, cfg.KernelSecret, cfg.ReconnectAttempts, translator.HandleEvent)
	translator.Link = link

	// The kernel stream is the bridge's reason to exist: when the link is
	// gone past the reconnect budget, the process exits.
	linkDone := make(chan error, 1)
	go func() {
		slog.Info("connecting to kernel", slog.String("addr", kernelAddr))
		linkDone <- link.Run(ctx)
	}()

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (webhook/health/metrics)
	handlers := server.NewHandlers(translator, link, cfg.CommandToken)
	httpDone := make(chan error, 1)
	go func() {
		slog.Info("listening for slack webhooks", slog.String("addr", cfg.HTTPAddr))
		httpDone <- server.Start(ctx, handlers, cfg.HTTPAddr)
	}()

	select {
	case err := <-linkDone:
		if err != nil {
			slog.Error("kernel link failed", slog.Any("err", err))
			stop()
			<-httpDone
			os.Exit(1)
		}
	case err := <-httpDone:
		if err != nil {
			slog.Error("http server failed", slog.Any("err", err))
			stop()
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down")
}
