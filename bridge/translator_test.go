package bridge

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/onnwee/slirck/config"
	"github.com/onnwee/slirck/irc"
)

type recordedPost struct {
	Channel  string
	Text     string
	Username string
	IconURL  string
}

type fakePoster struct {
	posts []recordedPost
	err   error
}

func (f *fakePoster) PostMessage(_ context.Context, channel, text, username, iconURL string) error {
	f.posts = append(f.posts, recordedPost{channel, text, username, iconURL})
	return f.err
}

type recordedSend struct {
	Method string
	Params map[string]string
}

type fakeSender struct {
	sends []recordedSend
	err   error
}

func (f *fakeSender) Send(_ context.Context, method string, params map[string]string) error {
	f.sends = append(f.sends, recordedSend{Method: method, Params: params})
	return f.err
}

type mapResolver map[string]string

func (m mapResolver) Resolve(_ context.Context, identity string) string {
	return m[strings.ToLower(identity)]
}

func newTestTranslator() (*Translator, *fakePoster, *fakeSender) {
	poster := &fakePoster{}
	sender := &fakeSender{}
	tr := &Translator{
		Codec:       ConventionCodec{},
		Slack:       poster,
		Avatars:     mapResolver{"alice": "http://img/alice.png"},
		Members:     NewMembership(),
		Link:        sender,
		Operator:    "operator",
		BroadcastID: "USLACKBOT",
	}
	return tr, poster, sender
}

func TestChannelMessageMapsToSlackPost(t *testing.T) {
	tr, poster, _ := newTestTranslator()
	tr.HandleEvent(context.Background(), irc.Event{
		Kind: irc.KindMessage, Network: "freenode",
		Nick: "alice", User: "a", Host: "host",
		Target: "#general", Text: "hi",
	})
	if len(poster.posts) != 1 {
		t.Fatalf("posts = %d, want 1", len(poster.posts))
	}
	want := recordedPost{Channel: "#freenode-general", Text: "hi", Username: "alice", IconURL: "http://img/alice.png"}
	if poster.posts[0] != want {
		t.Errorf("post = %+v, want %+v", poster.posts[0], want)
	}
}

func TestActionWrappedInEmphasis(t *testing.T) {
	tr, poster, _ := newTestTranslator()
	tr.HandleEvent(context.Background(), irc.Event{
		Kind: irc.KindAction, Network: "freenode", Nick: "bob",
		Target: "#general", Text: "waves",
	})
	if len(poster.posts) != 1 || poster.posts[0].Text != "_waves_" {
		t.Fatalf("posts = %+v, want one _waves_", poster.posts)
	}
	if poster.posts[0].IconURL != "" {
		t.Errorf("unknown identity should post without avatar, got %q", poster.posts[0].IconURL)
	}
}

func TestDirectMessageRoutedToOperator(t *testing.T) {
	tr, poster, _ := newTestTranslator()
	tr.HandleEvent(context.Background(), irc.Event{
		Kind: irc.KindMessage, Network: "freenode", Nick: "alice",
		Target: "slirck", Text: "psst",
	})
	if len(poster.posts) != 1 || poster.posts[0].Channel != "@operator" {
		t.Fatalf("posts = %+v, want one to @operator", poster.posts)
	}
}

func TestNoticeRoutedToOperator(t *testing.T) {
	tr, poster, _ := newTestTranslator()
	tr.HandleEvent(context.Background(), irc.Event{
		Kind: irc.KindNotice, Network: "freenode", Nick: "nickserv",
		Target: "slirck", Text: "This nickname is registered.",
	})
	if len(poster.posts) != 1 || poster.posts[0].Channel != "@operator" || poster.posts[0].Username != "nickserv" {
		t.Fatalf("posts = %+v", poster.posts)
	}
}

func TestUnmappableTargetDropped(t *testing.T) {
	tr, poster, _ := newTestTranslator()
	codec, err := NewTableCodec(nil) // nothing bound
	if err != nil {
		t.Fatalf("NewTableCodec: %v", err)
	}
	tr.Codec = codec
	tr.HandleEvent(context.Background(), irc.Event{
		Kind: irc.KindMessage, Network: "freenode", Nick: "alice",
		Target: "#general", Text: "hi",
	})
	if len(poster.posts) != 0 {
		t.Fatalf("posts = %+v, want none", poster.posts)
	}
}

func TestJoinAnnouncement(t *testing.T) {
	tr, poster, _ := newTestTranslator()
	tr.HandleEvent(context.Background(), irc.Event{
		Kind: irc.KindJoin, Network: "freenode",
		Nick: "alice", User: "a", Host: "host", Target: "#general",
	})
	if len(poster.posts) != 1 {
		t.Fatalf("posts = %d, want 1", len(poster.posts))
	}
	p := poster.posts[0]
	if p.Channel != "#freenode-general" || p.Username != "alice" {
		t.Errorf("post = %+v", p)
	}
	if p.Text != "*alice* joined *#general* [a@host]" {
		t.Errorf("text = %q", p.Text)
	}
	if got := tr.Members.Channels("freenode", "alice"); !reflect.DeepEqual(got, []string{"#general"}) {
		t.Errorf("membership = %v", got)
	}
}

func TestQuitFansOutByMembership(t *testing.T) {
	tr, poster, _ := newTestTranslator()
	tr.Members.Join("freenode", "#a", "alice")
	tr.Members.Join("freenode", "#b", "alice")
	tr.Members.Join("freenode", "#c", "someoneelse")

	tr.HandleEvent(context.Background(), irc.Event{
		Kind: irc.KindQuit, Network: "freenode", Nick: "alice", Text: "Read error",
	})
	if len(poster.posts) != 2 {
		t.Fatalf("posts = %+v, want 2", poster.posts)
	}
	channels := []string{poster.posts[0].Channel, poster.posts[1].Channel}
	if !reflect.DeepEqual(channels, []string{"#freenode-a", "#freenode-b"}) {
		t.Errorf("fan-out channels = %v", channels)
	}
	for _, p := range poster.posts {
		if p.Text != "*alice* quit [Read error]" {
			t.Errorf("text = %q", p.Text)
		}
	}
}

func TestQuitWithNoMembershipPostsNothing(t *testing.T) {
	tr, poster, _ := newTestTranslator()
	tr.HandleEvent(context.Background(), irc.Event{
		Kind: irc.KindQuit, Network: "freenode", Nick: "ghost", Text: "bye",
	})
	if len(poster.posts) != 0 {
		t.Fatalf("posts = %+v, want none", poster.posts)
	}
}

func TestNickChangeFansOutWithAvatarFallback(t *testing.T) {
	tr, poster, _ := newTestTranslator()
	tr.Avatars = mapResolver{"newnick": "http://img/new.png"}
	tr.Members.Join("freenode", "#a", "oldnick")

	tr.HandleEvent(context.Background(), irc.Event{
		Kind: irc.KindNick, Network: "freenode", Nick: "oldnick", Text: "newnick",
	})
	if len(poster.posts) != 1 {
		t.Fatalf("posts = %+v, want 1", poster.posts)
	}
	p := poster.posts[0]
	if p.Channel != "#freenode-a" || p.Username != "oldnick" {
		t.Errorf("post = %+v", p)
	}
	if p.Text != "_is now known as newnick_" {
		t.Errorf("text = %q", p.Text)
	}
	// Old identity had no avatar; the new identity's resolution is used.
	if p.IconURL != "http://img/new.png" {
		t.Errorf("icon = %q, want fallback to new identity", p.IconURL)
	}
	if got := tr.Members.Channels("freenode", "newnick"); !reflect.DeepEqual(got, []string{"#a"}) {
		t.Errorf("membership after rename = %v", got)
	}
}

func TestNickChangePrefersOldAvatar(t *testing.T) {
	tr, poster, _ := newTestTranslator()
	tr.Avatars = mapResolver{"oldnick": "http://img/old.png", "newnick": "http://img/new.png"}
	tr.Members.Join("freenode", "#a", "oldnick")

	tr.HandleEvent(context.Background(), irc.Event{
		Kind: irc.KindNick, Network: "freenode", Nick: "oldnick", Text: "newnick",
	})
	if poster.posts[0].IconURL != "http://img/old.png" {
		t.Errorf("icon = %q, want old identity preferred", poster.posts[0].IconURL)
	}
}

func TestTopicAnnouncement(t *testing.T) {
	tr, poster, _ := newTestTranslator()
	tr.HandleEvent(context.Background(), irc.Event{
		Kind: irc.KindTopic, Network: "freenode", Nick: "alice",
		Target: "#general", Text: "be kind",
	})
	if len(poster.posts) != 1 {
		t.Fatalf("posts = %d, want 1", len(poster.posts))
	}
	if poster.posts[0].Text != "*alice* changed the topic:\nbe kind" {
		t.Errorf("text = %q", poster.posts[0].Text)
	}
}

func TestEndOfMOTDJoinsConfiguredChannels(t *testing.T) {
	tr, poster, sender := newTestTranslator()
	tr.NickservPass = "pw"
	tr.Bindings = []config.Binding{
		{Network: "freenode", Channel: "#general"},
		{Network: "freenode", Channel: "#python"},
		{Network: "tilde", Channel: "#meta"},
	}

	tr.HandleEvent(context.Background(), irc.Event{Kind: irc.KindEndOfMOTD, Network: "freenode"})

	if len(poster.posts) != 1 || poster.posts[0].Channel != "@operator" {
		t.Errorf("registration announcement = %+v", poster.posts)
	}

	want := []recordedSend{
		{Method: "network.send", Params: map[string]string{"name": "freenode", "message": "PRIVMSG nickserv :identify pw"}},
		{Method: "network.send", Params: map[string]string{"name": "freenode", "message": "JOIN #general"}},
		{Method: "network.send", Params: map[string]string{"name": "freenode", "message": "JOIN #python"}},
	}
	if !reflect.DeepEqual(sender.sends, want) {
		t.Errorf("sends = %+v, want %+v", sender.sends, want)
	}
}

func TestEndOfMOTDWithoutNickservPass(t *testing.T) {
	tr, _, sender := newTestTranslator()
	tr.Bindings = []config.Binding{{Network: "freenode", Channel: "#general"}}
	tr.HandleEvent(context.Background(), irc.Event{Kind: irc.KindEndOfMOTD, Network: "freenode"})
	for _, s := range sender.sends {
		if strings.Contains(s.Params["message"], "identify") {
			t.Errorf("unexpected identify command: %+v", s)
		}
	}
}

func TestUnknownEventIgnored(t *testing.T) {
	tr, poster, sender := newTestTranslator()
	tr.HandleEvent(context.Background(), irc.Event{Kind: irc.KindUnknown, Network: "freenode"})
	if len(poster.posts) != 0 || len(sender.sends) != 0 {
		t.Errorf("unknown event produced output: %+v %+v", poster.posts, sender.sends)
	}
}

func TestSlackDeliveryFailureAbsorbed(t *testing.T) {
	tr, poster, _ := newTestTranslator()
	poster.err = errors.New("boom")
	tr.HandleEvent(context.Background(), irc.Event{
		Kind: irc.KindMessage, Network: "freenode", Nick: "alice",
		Target: "#general", Text: "hi",
	})
	// No panic, no retry: one attempt, dropped.
	if len(poster.posts) != 1 {
		t.Errorf("attempts = %d, want 1", len(poster.posts))
	}
}

// Slack -> network direction.

func TestSlackMessageMapsToKernelRequest(t *testing.T) {
	tr, _, sender := newTestTranslator()
	tr.HandleSlack(context.Background(), SlackInbound{
		UserID: "U123", UserName: "bob", Text: "hello", ChannelName: "freenode-general",
	})
	want := []recordedSend{
		{Method: "network.send", Params: map[string]string{"name": "freenode", "message": "PRIVMSG #general :hello"}},
	}
	if !reflect.DeepEqual(sender.sends, want) {
		t.Errorf("sends = %+v, want %+v", sender.sends, want)
	}
}

func TestBroadcastIdentityNeverRelayed(t *testing.T) {
	tr, _, sender := newTestTranslator()
	tr.HandleSlack(context.Background(), SlackInbound{
		UserID: "USLACKBOT", UserName: "slackbot", Text: "hello", ChannelName: "freenode-general",
	})
	tr.HandleSlack(context.Background(), SlackInbound{
		UserID: "", Text: "hello", ChannelName: "freenode-general",
	})
	if len(sender.sends) != 0 {
		t.Fatalf("broadcast identity produced requests: %+v", sender.sends)
	}
}

func TestPMCommand(t *testing.T) {
	tr, _, sender := newTestTranslator()
	tr.HandleSlack(context.Background(), SlackInbound{
		UserID: "U123", Command: "/pm", Text: "alice@freenode hi there",
	})
	want := []recordedSend{
		{Method: "network.send", Params: map[string]string{"name": "freenode", "message": "PRIVMSG alice :hi there"}},
	}
	if !reflect.DeepEqual(sender.sends, want) {
		t.Errorf("sends = %+v, want %+v", sender.sends, want)
	}
}

func TestPMCommandMalformed(t *testing.T) {
	tr, _, sender := newTestTranslator()
	for _, text := range []string{"", "alice", "alicefreenode hi", "@net hi"} {
		tr.HandleSlack(context.Background(), SlackInbound{UserID: "U123", Command: "/pm", Text: text})
	}
	if len(sender.sends) != 0 {
		t.Errorf("malformed /pm produced requests: %+v", sender.sends)
	}
}

func TestIRCJoinCommand(t *testing.T) {
	tr, _, sender := newTestTranslator()
	tr.HandleSlack(context.Background(), SlackInbound{
		UserID: "U123", Command: "/ircjoin", Text: "#python@freenode",
	})
	want := []recordedSend{
		{Method: "network.send", Params: map[string]string{"name": "freenode", "message": "JOIN #python"}},
	}
	if !reflect.DeepEqual(sender.sends, want) {
		t.Errorf("sends = %+v, want %+v", sender.sends, want)
	}
}

func TestRawCommandPassthrough(t *testing.T) {
	tr, _, sender := newTestTranslator()
	tr.HandleSlack(context.Background(), SlackInbound{
		UserID: "U123", Command: "/raw", Text: "freenode MODE #general +o alice",
	})
	want := []recordedSend{
		{Method: "network.send", Params: map[string]string{"name": "freenode", "message": "MODE #general +o alice"}},
	}
	if !reflect.DeepEqual(sender.sends, want) {
		t.Errorf("sends = %+v, want %+v", sender.sends, want)
	}
}

func TestUnbridgedSlackChannelDroppedSilently(t *testing.T) {
	tr, _, sender := newTestTranslator()
	tr.HandleSlack(context.Background(), SlackInbound{
		UserID: "U123", Text: "hello", ChannelName: "random",
	})
	if len(sender.sends) != 0 {
		t.Errorf("unbridged channel produced requests: %+v", sender.sends)
	}
}

func TestKernelSendFailureAbsorbed(t *testing.T) {
	tr, _, sender := newTestTranslator()
	sender.err = errors.New("link down")
	tr.HandleSlack(context.Background(), SlackInbound{
		UserID: "U123", Text: "hello", ChannelName: "freenode-general",
	})
	// The webhook boundary must always ack; failures stop here.
	if len(sender.sends) != 1 {
		t.Errorf("attempts = %d, want 1", len(sender.sends))
	}
}
