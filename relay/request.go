package relay

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// EventMethod is the only inbound notification method the bridge acts on;
// every other method is ignored for forward compatibility.
const EventMethod = "handler"

// Request is one outbound JSON-RPC call to the kernel. Requests are built
// once by NewRequest and never mutated afterwards.
type Request struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      string            `json:"id"`
	Method  string            `json:"method"`
	Params  map[string]string `json:"params"`
}

// NewRequest builds a request with a fresh random correlation id and the
// shared secret injected as an extra params field. The caller's params map
// is copied, not aliased.
func NewRequest(method string, params map[string]string, secret string) Request {
	merged := make(map[string]string, len(params)+1)
	for k, v := range params {
		merged[k] = v
	}
	merged["secret"] = secret
	return Request{
		JSONRPC: "2.0",
		ID:      uuid.New().String(),
		Method:  method,
		Params:  merged,
	}
}

// Encode serializes the request as a single frame, newline included.
func (r Request) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// redacted renders the request for trace logging with credentials masked:
// the shared secret always, and identify lines, which carry a services
// password in the message body.
func (r Request) redacted() string {
	masked := Request{JSONRPC: r.JSONRPC, ID: r.ID, Method: r.Method, Params: make(map[string]string, len(r.Params))}
	for k, v := range r.Params {
		switch {
		case k == "secret":
			v = "[redacted]"
		case k == "message" && strings.Contains(strings.ToLower(v), ":identify "):
			v = "[redacted]"
		}
		masked.Params[k] = v
	}
	data, err := json.Marshal(masked)
	if err != nil {
		return r.Method
	}
	return string(data)
}

// notification is the decoded shape of an inbound frame. Params stays raw
// until the method is recognized.
type notification struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// eventParams is the payload of an EventMethod notification.
type eventParams struct {
	Network string `json:"network"`
	Message string `json:"message"`
}
