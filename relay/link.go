package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onnwee/slirck/irc"
	"github.com/onnwee/slirck/telemetry"
)

// EventHandler receives decoded network events. The link calls it
// synchronously from its read loop, one frame at a time, so handlers see
// events in exactly the order the kernel emitted them.
type EventHandler func(ctx context.Context, ev irc.Event)

// Link owns the byte stream to the kernel. It dials, performs the
// stream.start handshake, deframes inbound notifications, and exposes Send
// for outbound requests. A Link is safe for concurrent Send calls.
type Link struct {
	addr     string
	secret   string
	attempts int
	handler  EventHandler

	mu   sync.Mutex // guards conn writes and replacement
	conn net.Conn
	up   atomic.Bool
}

// New creates a link to the kernel at addr. attempts bounds consecutive
// failed (re)connects before Run gives up; the counter resets every time a
// connection is established.
func New(addr, secret string, attempts int, handler EventHandler) *Link {
	if attempts < 1 {
		attempts = 1
	}
	return &Link{addr: addr, secret: secret, attempts: attempts, handler: handler}
}

// Connected reports whether the kernel stream is currently established.
func (l *Link) Connected() bool {
	return l.up.Load()
}

// Send issues one request to the kernel. The shared secret is injected at
// build time and never appears in logs.
func (l *Link) Send(ctx context.Context, method string, params map[string]string) error {
	req := NewRequest(method, params, l.secret)
	data, err := req.Encode()
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	l.mu.Lock()
	conn := l.conn
	if conn == nil {
		l.mu.Unlock()
		return errors.New("kernel link not connected")
	}
	telemetry.LoggerWithCorr(ctx).Debug("kernel request", slog.String("frame", req.redacted()))
	_, err = conn.Write(data)
	l.mu.Unlock()
	if err != nil {
		return fmt.Errorf("write %s request: %w", method, err)
	}
	telemetry.IncKernelRequests()
	return nil
}

// Run dials the kernel and processes the stream until ctx is canceled or
// the reconnect budget is spent. Each established connection begins with a
// stream.start request; that handshake is what makes the kernel forward
// network events to us.
func (l *Link) Run(ctx context.Context) error {
	failures := 0
	for {
		conn, err := l.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			if failures >= l.attempts {
				return fmt.Errorf("kernel connect: %w (gave up after %d attempts)", err, failures)
			}
			wait := backoff(failures)
			slog.Warn("kernel connect failed; retrying",
				slog.Any("err", err), slog.Int("attempt", failures), slog.Duration("backoff", wait))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		failures = 0

		err = l.serve(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
		failures++
		if failures >= l.attempts {
			return fmt.Errorf("kernel stream: %w (gave up after %d attempts)", err, failures)
		}
		wait := backoff(failures)
		slog.Warn("kernel stream lost; reconnecting",
			slog.Any("err", err), slog.Int("attempt", failures), slog.Duration("backoff", wait))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil
		}
	}
}

func (l *Link) dial(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Timeout: 10 * time.Second}
	return d.DialContext(ctx, "tcp", l.addr)
}

// serve runs one connection to completion. It returns the read error that
// ended the stream.
func (l *Link) serve(ctx context.Context, conn net.Conn) error {
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	l.up.Store(true)
	telemetry.SetLinkUp(true)
	slog.Info("kernel link established", slog.String("addr", l.addr))

	defer func() {
		l.up.Store(false)
		telemetry.SetLinkUp(false)
		l.mu.Lock()
		l.conn = nil
		l.mu.Unlock()
		_ = conn.Close()
	}()

	// Unblock the read loop on shutdown by closing the connection.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	if err := l.Send(ctx, "stream.start", nil); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	var lb LineBuffer
	chunk := make([]byte, 4096)
	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			for _, frame := range lb.Feed(chunk[:n]) {
				l.dispatch(ctx, frame)
			}
		}
		if err != nil {
			return err
		}
	}
}

// dispatch decodes one frame and forwards recognized event notifications.
// A frame that fails to decode, carries an unknown method, or is missing
// required fields is dropped without disturbing the stream.
func (l *Link) dispatch(ctx context.Context, frame []byte) {
	telemetry.IncFramesReceived()
	slog.Debug("kernel frame", slog.String("frame", string(frame)))

	var note notification
	if err := json.Unmarshal(frame, &note); err != nil {
		telemetry.IncFrameDecodeFailures()
		slog.Warn("undecodable kernel frame", slog.Any("err", err))
		return
	}
	if note.Method != EventMethod {
		return
	}
	var params eventParams
	if err := json.Unmarshal(note.Params, &params); err != nil {
		telemetry.IncFrameDecodeFailures()
		slog.Warn("bad event params", slog.Any("err", err))
		return
	}
	if params.Network == "" || params.Message == "" {
		return
	}
	if l.handler != nil {
		l.handler(ctx, irc.Parse(params.Network, params.Message))
	}
}

// backoff returns the wait before reconnect attempt n (1-based), capped at
// 30 seconds.
func backoff(n int) time.Duration {
	if n > 5 {
		return 30 * time.Second
	}
	d := time.Second << (n - 1)
	if d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}
