package relay

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNewRequestInjectsSecret(t *testing.T) {
	req := NewRequest("network.send", map[string]string{"name": "freenode", "message": "PRIVMSG #general :hello"}, "hunter2")
	if req.JSONRPC != "2.0" {
		t.Errorf("jsonrpc = %q, want 2.0", req.JSONRPC)
	}
	if req.ID == "" {
		t.Error("expected generated correlation id")
	}
	if req.Params["secret"] != "hunter2" {
		t.Errorf("secret = %q, want hunter2", req.Params["secret"])
	}
	if req.Params["name"] != "freenode" {
		t.Errorf("name param = %q", req.Params["name"])
	}
}

func TestNewRequestDoesNotAliasParams(t *testing.T) {
	params := map[string]string{"name": "freenode"}
	_ = NewRequest("network.send", params, "s")
	if _, ok := params["secret"]; ok {
		t.Error("caller params map was mutated")
	}
}

func TestNewRequestUniqueIDs(t *testing.T) {
	a := NewRequest("stream.start", nil, "s")
	b := NewRequest("stream.start", nil, "s")
	if a.ID == b.ID {
		t.Errorf("ids collide: %q", a.ID)
	}
}

func TestEncodeTerminatesFrame(t *testing.T) {
	req := NewRequest("stream.start", nil, "s")
	data, err := req.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if data[len(data)-1] != '\n' {
		t.Error("frame missing newline terminator")
	}
	var decoded map[string]any
	if err := json.Unmarshal(data[:len(data)-1], &decoded); err != nil {
		t.Fatalf("encoded frame not valid JSON: %v", err)
	}
	if decoded["method"] != "stream.start" {
		t.Errorf("method = %v", decoded["method"])
	}
}

func TestRedactedHidesSecret(t *testing.T) {
	req := NewRequest("network.send", map[string]string{"message": "JOIN #general"}, "topsecret")
	out := req.redacted()
	if strings.Contains(out, "topsecret") {
		t.Fatalf("redacted trace leaks secret: %s", out)
	}
	if !strings.Contains(out, "[redacted]") {
		t.Errorf("expected [redacted] marker in %s", out)
	}
	if !strings.Contains(out, "JOIN #general") {
		t.Errorf("non-secret params should survive redaction: %s", out)
	}
}

func TestRedactedHidesIdentifyPassword(t *testing.T) {
	req := NewRequest("network.send", map[string]string{
		"name":    "freenode",
		"message": "PRIVMSG nickserv :identify hunter2",
	}, "topsecret")
	out := req.redacted()
	if strings.Contains(out, "hunter2") {
		t.Fatalf("redacted trace leaks services password: %s", out)
	}
	if !strings.Contains(out, "freenode") {
		t.Errorf("non-secret params should survive redaction: %s", out)
	}
}
