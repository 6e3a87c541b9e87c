// Package avatar resolves a sender identity to a decorative image URL for
// Slack posts. Resolution is best-effort: a missing avatar never blocks
// message delivery, so Resolve reports "" instead of an error.
package avatar

import (
	"context"
	"crypto/md5" //nolint:gosec // identity fingerprint for avatar URLs, not a security boundary
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Resolver maps a display identity to an image URL. Implementations
// normalize the identity to lower case before lookup.
type Resolver interface {
	Resolve(ctx context.Context, identity string) string
}

// Gravatar generates a deterministic avatar URL from the md5 digest of the
// identity, falling back to a generated sigil when no gravatar exists. It
// never fails and needs no cache.
type Gravatar struct{}

func (Gravatar) Resolve(_ context.Context, identity string) string {
	sum := md5.Sum([]byte(strings.ToLower(identity))) //nolint:gosec
	digest := hex.EncodeToString(sum[:])
	return fmt.Sprintf("http://www.gravatar.com/avatar/%s?d=https%%3A%%2F%%2Fsigil.cupcake.io%%2F%s", digest, digest)
}

// Directory looks avatars up in a remote user directory with two calls:
// user_search resolves the identity to a numeric id, listener resolves the
// id to an image path. Results are cached; cache hits skip both calls.
type Directory struct {
	BaseURL    string // service root, e.g. http://rainwave.cc
	UserID     string // credential for the listener endpoint
	Key        string
	HTTPClient *http.Client

	cache *lru.Cache[string, string]
}

// NewDirectory builds a Directory resolver with a bounded LRU cache.
func NewDirectory(baseURL, userID, key string, cacheSize int) (*Directory, error) {
	if cacheSize < 1 {
		cacheSize = 1
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Directory{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		UserID:     userID,
		Key:        key,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		cache:      cache,
	}, nil
}

func (d *Directory) Resolve(ctx context.Context, identity string) string {
	nick := strings.ToLower(identity)
	if cached, ok := d.cache.Get(nick); ok {
		return cached
	}

	var search struct {
		User struct {
			UserID int64 `json:"user_id"`
		} `json:"user"`
	}
	if !d.call(ctx, "user_search", url.Values{"username": {nick}}, &search) {
		return ""
	}

	var listener struct {
		Listener struct {
			Avatar string `json:"avatar"`
		} `json:"listener"`
	}
	params := url.Values{
		"id":      {fmt.Sprintf("%d", search.User.UserID)},
		"user_id": {d.UserID},
		"key":     {d.Key},
	}
	if !d.call(ctx, "listener", params, &listener) {
		return ""
	}
	if listener.Listener.Avatar == "" {
		return ""
	}

	resolved := d.BaseURL + listener.Listener.Avatar
	d.cache.Add(nick, resolved)
	return resolved
}

// call posts one form-encoded API request and decodes the response into
// out. Any failure (transport, status, decode) is reported as a miss.
func (d *Directory) call(ctx context.Context, path string, params url.Values, out any) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.BaseURL+"/api4/"+path, strings.NewReader(params.Encode()))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	hc := d.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		slog.Debug("avatar directory unreachable", slog.String("path", path), slog.Any("err", err))
		return false
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		slog.Debug("avatar directory response malformed", slog.String("path", path), slog.Any("err", err))
		return false
	}
	return true
}
