// Package slack contains a minimal Slack Web API client for the calls the
// bridge makes: posting messages and joining (provisioning) channels.
package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/onnwee/slirck/telemetry"
)

// Client calls the Slack Web API with form-encoded requests. The zero value
// is not usable; construct with New.
type Client struct {
	BaseURL    string
	Token      string
	Username   string // operator account, notified when a channel is provisioned
	HTTPClient *http.Client
}

// New builds a client with a seconds-scale request timeout so a stalled
// Slack endpoint cannot wedge the relay indefinitely.
func New(baseURL, token, username string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		Token:      token,
		Username:   username,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// apiResponse is the envelope every Web API method returns.
type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// errChannelNotFound is the one structured failure the client self-heals.
const errChannelNotFound = "channel_not_found"

// PostMessage posts text to a channel under the given display username with
// an optional avatar URL. If Slack reports the channel does not exist, the
// client provisions it with exactly one channels.join call and retries the
// post exactly once. Failures are returned for the caller to log; they are
// never fatal.
func (c *Client) PostMessage(ctx context.Context, channel, text, username, iconURL string) error {
	ctx, span := telemetry.StartSpan(ctx, "slack-client", "chat.postMessage")
	defer span.End()

	var err error
	telemetry.TimeFunc(telemetry.SlackPostDuration, func() {
		err = c.postOnce(ctx, channel, text, username, iconURL, true)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.IncSlackPostFailed()
		return err
	}
	telemetry.SetSpanSuccess(span)
	telemetry.IncSlackPostSucceeded()
	return nil
}

func (c *Client) postOnce(ctx context.Context, channel, text, username, iconURL string, heal bool) error {
	params := url.Values{
		"token":    {c.Token},
		"channel":  {channel},
		"text":     {text},
		"username": {username},
	}
	if iconURL != "" {
		params.Set("icon_url", iconURL)
	}
	resp, err := c.call(ctx, "chat.postMessage", params)
	if err != nil {
		return err
	}
	if resp.OK {
		return nil
	}
	if heal && resp.Error == errChannelNotFound {
		slog.Info("slack channel missing; provisioning", slog.String("channel", channel))
		if err := c.JoinChannel(ctx, channel); err != nil {
			return fmt.Errorf("provision %s: %w", channel, err)
		}
		return c.postOnce(ctx, channel, text, username, iconURL, false)
	}
	return fmt.Errorf("chat.postMessage %s: %s", channel, resp.Error)
}

// JoinChannel creates or joins a channel and tells the operator about it.
func (c *Client) JoinChannel(ctx context.Context, name string) error {
	resp, err := c.call(ctx, "channels.join", url.Values{"token": {c.Token}, "name": {name}})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("channels.join %s: %s", name, resp.Error)
	}
	telemetry.IncChannelProvisions()

	// Best effort: a failed notification must not fail the provisioning.
	notice := url.Values{
		"token":    {c.Token},
		"channel":  {"@" + c.Username},
		"text":     {fmt.Sprintf("I created a new channel %s", name)},
		"username": {"IRC Bot"},
	}
	if resp, err := c.call(ctx, "chat.postMessage", notice); err != nil {
		slog.Warn("provisioning notice failed", slog.Any("err", err))
	} else if !resp.OK {
		slog.Warn("provisioning notice rejected", slog.String("error", resp.Error))
	}
	return nil
}

// call posts one form-encoded Web API request. Request params are never
// logged; they carry the token.
func (c *Client) call(ctx context.Context, method string, params url.Values) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/"+method, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: http %d", method, resp.StatusCode)
	}
	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", method, err)
	}
	return &body, nil
}
