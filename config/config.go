// Package config loads environment variables and provides a typed Config used across the bridge.
// It applies sensible defaults so the binary can run locally with minimal setup.
// Required credentials (kernel secret, Slack token) are checked by Validate.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Binding ties one (network, channel) pair on the IRC side to its Slack
// channel name. SlackName is empty when the name follows the standard
// <network>-<channel> convention and explicit when an operator mapped it
// by hand in BRIDGE_CHANNELS.
type Binding struct {
	Network   string
	Channel   string
	SlackName string
}

type Config struct {
	// Kernel link
	KernelHost        string
	KernelPort        int
	KernelSecret      string
	ReconnectAttempts int

	// Slack
	SlackToken    string
	SlackUsername string
	SlackAPIURL   string
	BroadcastID   string
	CommandToken  string

	// Channels
	Bindings []Binding

	// IRC side extras
	NickservPass string

	// Avatars
	AvatarStrategy     string
	AvatarDirectoryURL string
	AvatarDirectoryID  string
	AvatarDirectoryKey string
	AvatarCacheSize    int

	// HTTP
	HTTPAddr string
}

// Load reads environment variables and applies defaults. It only fails on
// values that cannot be parsed; use Validate() for required-key checks so
// callers can decide which features they need.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.KernelHost = os.Getenv("KERNEL_HOST")
	if cfg.KernelHost == "" {
		cfg.KernelHost = "localhost"
	}
	if v := os.Getenv("KERNEL_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p <= 0 || p > 65535 {
			return nil, fmt.Errorf("invalid KERNEL_PORT %q", v)
		}
		cfg.KernelPort = p
	}
	cfg.KernelSecret = os.Getenv("KERNEL_SECRET")
	cfg.ReconnectAttempts = getEnvInt("KERNEL_RECONNECT_ATTEMPTS", 5)

	cfg.SlackToken = os.Getenv("SLACK_TOKEN")
	cfg.SlackUsername = os.Getenv("SLACK_USERNAME")
	cfg.SlackAPIURL = os.Getenv("SLACK_API_URL")
	if cfg.SlackAPIURL == "" {
		cfg.SlackAPIURL = "https://slack.com/api"
	}
	cfg.BroadcastID = os.Getenv("SLACK_BROADCAST_ID")
	if cfg.BroadcastID == "" {
		cfg.BroadcastID = "USLACKBOT"
	}
	cfg.CommandToken = os.Getenv("SLACK_COMMAND_TOKEN")

	bindings, err := ParseBindings(os.Getenv("BRIDGE_CHANNELS"))
	if err != nil {
		return nil, err
	}
	cfg.Bindings = bindings

	cfg.NickservPass = os.Getenv("NICKSERV_PASS")

	cfg.AvatarStrategy = strings.ToLower(os.Getenv("AVATAR_STRATEGY"))
	if cfg.AvatarStrategy == "" {
		cfg.AvatarStrategy = "gravatar"
	}
	if cfg.AvatarStrategy != "gravatar" && cfg.AvatarStrategy != "directory" {
		return nil, fmt.Errorf("invalid AVATAR_STRATEGY %q (want gravatar or directory)", cfg.AvatarStrategy)
	}
	cfg.AvatarDirectoryURL = os.Getenv("AVATAR_DIRECTORY_URL")
	cfg.AvatarDirectoryID = os.Getenv("AVATAR_DIRECTORY_USER_ID")
	cfg.AvatarDirectoryKey = os.Getenv("AVATAR_DIRECTORY_KEY")
	cfg.AvatarCacheSize = getEnvInt("AVATAR_CACHE_SIZE", 4096)

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	return cfg, nil
}

// Validate checks the keys the bridge cannot run without. Missing keys are
// a startup error, never discovered mid-relay.
func (c *Config) Validate() error {
	if c.KernelPort == 0 {
		return fmt.Errorf("missing KERNEL_PORT")
	}
	if c.KernelSecret == "" {
		return fmt.Errorf("missing KERNEL_SECRET")
	}
	if c.SlackToken == "" {
		return fmt.Errorf("missing SLACK_TOKEN")
	}
	if c.SlackUsername == "" {
		return fmt.Errorf("missing SLACK_USERNAME")
	}
	return nil
}

// ParseBindings parses the BRIDGE_CHANNELS value: comma-separated entries of
// the form network:#channel or network:#channel=slackname. Network ids may
// not contain "-" because the name convention splits on it; rejecting them
// here keeps the codec total at translation time.
func ParseBindings(raw string) ([]Binding, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []Binding
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		var slackName string
		if i := strings.Index(entry, "="); i >= 0 {
			slackName = strings.TrimSpace(entry[i+1:])
			if slackName == "" {
				return nil, fmt.Errorf("invalid BRIDGE_CHANNELS entry %q: empty slack name", entry)
			}
			entry = entry[:i]
		}
		network, channel, ok := strings.Cut(entry, ":")
		if !ok || network == "" || channel == "" {
			return nil, fmt.Errorf("invalid BRIDGE_CHANNELS entry %q (want network:#channel)", entry)
		}
		if strings.Contains(network, "-") {
			return nil, fmt.Errorf("network id %q may not contain '-'", network)
		}
		if !strings.HasPrefix(channel, "#") {
			return nil, fmt.Errorf("channel %q must start with '#'", channel)
		}
		out = append(out, Binding{Network: network, Channel: channel, SlackName: slackName})
	}
	return out, nil
}

// getEnvInt returns an integer environment variable value or default if not set or invalid.
func getEnvInt(key string, defaultVal int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return defaultVal
}
