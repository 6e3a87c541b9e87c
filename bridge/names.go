// Package bridge translates between kernel network events and Slack calls.
// It holds the channel naming codec, the membership index used for quit and
// nick-change fan-out, and the translator that ties them together.
package bridge

import (
	"fmt"
	"strings"

	"github.com/onnwee/slirck/config"
)

// Codec maps between a Slack channel name and a (network, channel) pair.
// Both directions must be exactly invertible over the configured address
// space: encode then decode always round-trips.
type Codec interface {
	Encode(network, channel string) (string, error)
	Decode(slackName string) (network, channel string, err error)
}

// ConventionCodec derives Slack names algorithmically:
// <network>-<channel-without-#>. It is total for any network id that does
// not contain the separator; config validation rejects ids that do.
type ConventionCodec struct{}

func (ConventionCodec) Encode(network, channel string) (string, error) {
	return network + "-" + strings.TrimPrefix(channel, "#"), nil
}

func (ConventionCodec) Decode(slackName string) (string, string, error) {
	network, channel, ok := strings.Cut(slackName, "-")
	if !ok || network == "" || channel == "" {
		return "", "", fmt.Errorf("channel name %q does not match <network>-<channel>", slackName)
	}
	return network, "#" + channel, nil
}

type pair struct {
	network string
	channel string
}

// TableCodec maps through an explicit operator-maintained table. Bindings
// without an explicit Slack name fall back to the conventional name, so a
// deployment can mix both styles. The table is read-only after construction.
type TableCodec struct {
	bySlack map[string]pair
	byPair  map[pair]string
}

// NewTableCodec builds the table and verifies the mapping is unique in both
// directions, which is what makes it invertible.
func NewTableCodec(bindings []config.Binding) (*TableCodec, error) {
	tc := &TableCodec{
		bySlack: make(map[string]pair, len(bindings)),
		byPair:  make(map[pair]string, len(bindings)),
	}
	for _, b := range bindings {
		name := b.SlackName
		if name == "" {
			name, _ = ConventionCodec{}.Encode(b.Network, b.Channel)
		}
		p := pair{network: b.Network, channel: b.Channel}
		if prev, ok := tc.bySlack[name]; ok {
			return nil, fmt.Errorf("slack name %q bound to both %s%s and %s%s", name, prev.network, prev.channel, p.network, p.channel)
		}
		if prev, ok := tc.byPair[p]; ok {
			return nil, fmt.Errorf("%s%s bound to both slack names %q and %q", p.network, p.channel, prev, name)
		}
		tc.bySlack[name] = p
		tc.byPair[p] = name
	}
	return tc, nil
}

func (tc *TableCodec) Encode(network, channel string) (string, error) {
	name, ok := tc.byPair[pair{network: network, channel: channel}]
	if !ok {
		return "", fmt.Errorf("no binding for %s%s", network, channel)
	}
	return name, nil
}

func (tc *TableCodec) Decode(slackName string) (string, string, error) {
	p, ok := tc.bySlack[slackName]
	if !ok {
		return "", "", fmt.Errorf("no binding for slack channel %q", slackName)
	}
	return p.network, p.channel, nil
}

// NewCodec selects the codec for a deployment: the explicit table when any
// binding carries an operator-chosen Slack name, the pure convention
// otherwise.
func NewCodec(bindings []config.Binding) (Codec, error) {
	for _, b := range bindings {
		if b.SlackName != "" {
			return NewTableCodec(bindings)
		}
	}
	return ConventionCodec{}, nil
}
