package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/onnwee/slirck/avatar"
	"github.com/onnwee/slirck/config"
	"github.com/onnwee/slirck/irc"
	"github.com/onnwee/slirck/telemetry"
)

// Poster is the outbound Slack surface the translator needs.
type Poster interface {
	PostMessage(ctx context.Context, channel, text, username, iconURL string) error
}

// Sender issues requests on the kernel link.
type Sender interface {
	Send(ctx context.Context, method string, params map[string]string) error
}

// Translator converts kernel network events into Slack posts and Slack
// webhook payloads into kernel requests. It never returns errors to its
// callers: every fault is logged and the event dropped, per the relay's
// best-effort contract.
type Translator struct {
	Codec    Codec
	Slack    Poster
	Avatars  avatar.Resolver
	Members  *Membership
	Link     Sender
	Bindings []config.Binding

	// Operator is the Slack username direct traffic is routed to.
	Operator string
	// BroadcastID is the service's own system identity; payloads from it
	// are discarded to prevent relay loops.
	BroadcastID string
	// NickservPass, when set, is sent as an identify command once a
	// network finishes registration.
	NickservPass string
}

// HandleEvent maps one decoded network event to at most a handful of Slack
// posts or kernel requests. It is called synchronously from the link read
// loop, so Slack delivery order matches kernel arrival order.
func (t *Translator) HandleEvent(ctx context.Context, ev irc.Event) {
	switch ev.Kind {
	case irc.KindMessage:
		t.relayMessage(ctx, ev, ev.Text)
	case irc.KindAction:
		t.relayMessage(ctx, ev, "_"+ev.Text+"_")
	case irc.KindNotice:
		// Notices go to the operator directly, whoever they addressed.
		t.post(ctx, "@"+t.Operator, ev.Text, ev.Nick, t.resolveAvatar(ctx, ev.Nick))
	case irc.KindJoin:
		t.Members.Join(ev.Network, ev.Target, ev.Nick)
		name, err := t.Codec.Encode(ev.Network, ev.Target)
		if err != nil {
			t.dropEvent(ctx, ev, err)
			return
		}
		text := fmt.Sprintf("*%s* joined *%s* [%s@%s]", ev.Nick, ev.Target, ev.User, ev.Host)
		t.post(ctx, "#"+name, text, ev.Nick, t.resolveAvatar(ctx, ev.Nick))
	case irc.KindPart:
		// Bookkeeping only; parts are not announced.
		t.Members.Part(ev.Network, ev.Target, ev.Nick)
	case irc.KindQuit:
		text := fmt.Sprintf("*%s* quit [%s]", ev.Nick, ev.Text)
		icon := t.resolveAvatar(ctx, ev.Nick)
		for _, channel := range t.Members.Quit(ev.Network, ev.Nick) {
			name, err := t.Codec.Encode(ev.Network, channel)
			if err != nil {
				t.dropEvent(ctx, ev, err)
				continue
			}
			t.post(ctx, "#"+name, text, ev.Nick, icon)
		}
	case irc.KindNick:
		newNick := ev.Text
		t.Members.Rename(ev.Network, ev.Nick, newNick)
		// Prefer the old identity's avatar; it is the one observers know.
		icon := t.resolveAvatar(ctx, ev.Nick)
		if icon == "" {
			icon = t.resolveAvatar(ctx, newNick)
		}
		text := fmt.Sprintf("_is now known as %s_", newNick)
		for _, channel := range t.Members.Channels(ev.Network, newNick) {
			name, err := t.Codec.Encode(ev.Network, channel)
			if err != nil {
				t.dropEvent(ctx, ev, err)
				continue
			}
			t.post(ctx, "#"+name, text, ev.Nick, icon)
		}
	case irc.KindTopic:
		name, err := t.Codec.Encode(ev.Network, ev.Target)
		if err != nil {
			t.dropEvent(ctx, ev, err)
			return
		}
		text := fmt.Sprintf("*%s* changed the topic:\n%s", ev.Nick, ev.Text)
		t.post(ctx, "#"+name, text, ev.Nick, t.resolveAvatar(ctx, ev.Nick))
	case irc.KindEndOfMOTD:
		t.onRegistered(ctx, ev.Network)
	default:
		slog.Debug("ignoring event", slog.String("kind", ev.Kind.String()), slog.String("network", ev.Network))
	}
}

// relayMessage delivers a message or action: channel targets map through
// the codec, direct targets go to the operator.
func (t *Translator) relayMessage(ctx context.Context, ev irc.Event, text string) {
	channel := "@" + t.Operator
	if irc.IsChannel(ev.Target) {
		name, err := t.Codec.Encode(ev.Network, ev.Target)
		if err != nil {
			t.dropEvent(ctx, ev, err)
			return
		}
		channel = "#" + name
	}
	t.post(ctx, channel, text, ev.Nick, t.resolveAvatar(ctx, ev.Nick))
}

// onRegistered runs once a network finishes registration (end of MOTD):
// identify to services if configured, then join every bound channel.
func (t *Translator) onRegistered(ctx context.Context, network string) {
	t.post(ctx, "@"+t.Operator, fmt.Sprintf("_%s registration complete_", network), network, "")
	if t.NickservPass != "" {
		t.send(ctx, network, "PRIVMSG nickserv :identify "+t.NickservPass)
	}
	for _, b := range t.Bindings {
		if b.Network != network {
			continue
		}
		t.send(ctx, network, "JOIN "+b.Channel)
	}
}

// SlackInbound is one decoded webhook payload from the Slack side.
type SlackInbound struct {
	UserID      string
	UserName    string
	Text        string
	ChannelName string
	Command     string
}

// HandleSlack maps one webhook payload to at most one kernel request.
// Payloads from the broadcast identity are discarded unconditionally; that
// is what keeps the bridge from relaying its own announcements back.
func (t *Translator) HandleSlack(ctx context.Context, in SlackInbound) {
	if in.UserID == "" || in.UserID == t.BroadcastID {
		return
	}
	log := telemetry.LoggerWithCorr(ctx)

	switch {
	case strings.Contains(in.Command, "/pm"):
		target, text, ok := strings.Cut(in.Text, " ")
		if !ok {
			log.Warn("malformed /pm", slog.String("text", in.Text))
			return
		}
		nick, network, ok := strings.Cut(target, "@")
		if !ok || nick == "" || network == "" {
			log.Warn("malformed /pm target", slog.String("target", target))
			return
		}
		t.send(ctx, network, "PRIVMSG "+nick+" :"+text)
	case strings.Contains(in.Command, "/ircjoin"):
		channel, network, ok := strings.Cut(in.Text, "@")
		if !ok || channel == "" || network == "" {
			log.Warn("malformed /ircjoin", slog.String("text", in.Text))
			return
		}
		t.send(ctx, network, "JOIN "+channel)
	case strings.Contains(in.Command, "/raw"):
		// Verbatim passthrough. No validation on purpose; the webhook
		// boundary is responsible for restricting who can reach this.
		network, line, ok := strings.Cut(in.Text, " ")
		if !ok || network == "" || line == "" {
			log.Warn("malformed /raw", slog.String("text", in.Text))
			return
		}
		t.send(ctx, network, line)
	default:
		network, channel, err := t.Codec.Decode(in.ChannelName)
		if err != nil {
			// Not every Slack channel is bridged.
			log.Debug("unbridged slack channel", slog.String("channel", in.ChannelName))
			return
		}
		t.send(ctx, network, "PRIVMSG "+channel+" :"+in.Text)
	}
}

// post delivers one Slack message, absorbing failures.
func (t *Translator) post(ctx context.Context, channel, text, username, iconURL string) {
	if err := t.Slack.PostMessage(ctx, channel, text, username, iconURL); err != nil {
		telemetry.IncEventsDropped()
		telemetry.LoggerWithCorr(ctx).Warn("slack delivery failed",
			slog.String("channel", channel), slog.Any("err", err))
		return
	}
	telemetry.IncEventsRelayed()
}

// send issues one network.send request to the kernel, absorbing failures.
func (t *Translator) send(ctx context.Context, network, message string) {
	if err := t.Link.Send(ctx, "network.send", map[string]string{"name": network, "message": message}); err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("kernel send failed",
			slog.String("network", network), slog.Any("err", err))
	}
}

func (t *Translator) resolveAvatar(ctx context.Context, nick string) string {
	if t.Avatars == nil {
		return ""
	}
	return t.Avatars.Resolve(ctx, nick)
}

func (t *Translator) dropEvent(ctx context.Context, ev irc.Event, err error) {
	telemetry.IncEventsDropped()
	telemetry.LoggerWithCorr(ctx).Warn("cannot map event target",
		slog.String("kind", ev.Kind.String()),
		slog.String("network", ev.Network),
		slog.String("target", ev.Target),
		slog.Any("err", err))
}
