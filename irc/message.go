// Package irc decodes raw IRC protocol lines into typed events.
// The bridge never speaks IRC itself (the kernel owns the sockets); this
// package only interprets the lines the kernel forwards.
package irc

import "strings"

// Kind identifies the recognized event variants. Anything the bridge does
// not understand decodes to KindUnknown and is dropped downstream.
type Kind int

const (
	KindUnknown Kind = iota
	KindMessage
	KindAction
	KindNotice
	KindJoin
	KindPart
	KindQuit
	KindNick
	KindTopic
	KindEndOfMOTD
)

func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindAction:
		return "action"
	case KindNotice:
		return "notice"
	case KindJoin:
		return "join"
	case KindPart:
		return "part"
	case KindQuit:
		return "quit"
	case KindNick:
		return "nick"
	case KindTopic:
		return "topic"
	case KindEndOfMOTD:
		return "end_of_motd"
	default:
		return "unknown"
	}
}

// Event is one decoded unit of activity from an upstream network. Events are
// value types: constructed once by Parse, never mutated.
type Event struct {
	Kind    Kind
	Network string

	// Sender hostmask parts. User has the ident "~" marker stripped.
	Nick string
	User string
	Host string

	// Target is the channel or nick the event addresses, where the command
	// carries one (message, notice, join, part, topic).
	Target string

	// Text is the payload: message body, quit/part reason, topic text, or
	// the new nick for KindNick.
	Text string
}

// IsChannel reports whether an IRC target names a channel rather than a user.
func IsChannel(target string) bool {
	return strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&")
}

// Parse decodes one raw IRC line received from the kernel for the given
// network. It never fails: lines that don't match a recognized command come
// back with KindUnknown.
func Parse(network, line string) Event {
	ev := Event{Kind: KindUnknown, Network: network}
	tokens := strings.Fields(line)
	if len(tokens) < 2 {
		return ev
	}
	ev.Nick, ev.User, ev.Host = ParseHostmask(tokens[0])

	switch tokens[1] {
	case "PRIVMSG":
		if len(tokens) < 3 {
			return ev
		}
		ev.Target = tokens[2]
		ev.Text = trailing(line)
		if inner, ok := ctcpAction(ev.Text); ok {
			ev.Kind = KindAction
			ev.Text = inner
		} else {
			ev.Kind = KindMessage
		}
	case "NOTICE":
		if len(tokens) < 3 {
			return ev
		}
		ev.Kind = KindNotice
		ev.Target = tokens[2]
		ev.Text = trailing(line)
	case "JOIN":
		if len(tokens) < 3 {
			return ev
		}
		ev.Kind = KindJoin
		ev.Target = strings.TrimPrefix(tokens[2], ":")
	case "PART":
		if len(tokens) < 3 {
			return ev
		}
		ev.Kind = KindPart
		ev.Target = strings.TrimPrefix(tokens[2], ":")
		ev.Text = trailing(line)
	case "QUIT":
		ev.Kind = KindQuit
		ev.Text = trailing(line)
	case "NICK":
		if len(tokens) < 3 {
			return ev
		}
		ev.Kind = KindNick
		ev.Text = strings.TrimPrefix(tokens[2], ":")
	case "TOPIC":
		if len(tokens) < 3 {
			return ev
		}
		ev.Kind = KindTopic
		ev.Target = tokens[2]
		ev.Text = trailing(line)
	case "376":
		ev.Kind = KindEndOfMOTD
	}
	return ev
}

// ParseHostmask splits an IRC prefix of the form ":nick!user@host". Server
// prefixes without a "!" yield the whole name as the nick with empty
// user/host, which is how server notices arrive.
func ParseHostmask(prefix string) (nick, user, host string) {
	prefix = strings.TrimPrefix(prefix, ":")
	nick, rest, ok := strings.Cut(prefix, "!")
	if !ok {
		return prefix, "", ""
	}
	user, host, _ = strings.Cut(rest, "@")
	user = strings.TrimPrefix(user, "~")
	return nick, user, host
}

// trailing extracts the trailing parameter (everything after the first " :").
func trailing(line string) string {
	_, text, ok := strings.Cut(line, " :")
	if !ok {
		return ""
	}
	return text
}

// ctcpAction unwraps a CTCP ACTION payload ("/me" messages).
func ctcpAction(text string) (string, bool) {
	const sep = "\x01"
	if !strings.HasPrefix(text, sep+"ACTION ") {
		return "", false
	}
	return strings.TrimSuffix(strings.TrimPrefix(text, sep+"ACTION "), sep), true
}
