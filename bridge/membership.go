package bridge

import (
	"sort"
	"strings"
	"sync"
)

// Membership tracks which identities are currently present in which
// channels, per network. Quits are not channel-scoped on the IRC protocol,
// so this index is what decides where quit and nick-change announcements
// fan out. Identities are normalized to lower case.
type Membership struct {
	mu       sync.Mutex
	channels map[pair]map[string]struct{}
}

func NewMembership() *Membership {
	return &Membership{channels: make(map[pair]map[string]struct{})}
}

// Join records an identity entering a channel.
func (m *Membership) Join(network, channel, nick string) {
	nick = strings.ToLower(nick)
	m.mu.Lock()
	defer m.mu.Unlock()
	p := pair{network: network, channel: channel}
	set := m.channels[p]
	if set == nil {
		set = make(map[string]struct{})
		m.channels[p] = set
	}
	set[nick] = struct{}{}
}

// Part records an identity leaving one channel.
func (m *Membership) Part(network, channel, nick string) {
	nick = strings.ToLower(nick)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels[pair{network: network, channel: channel}], nick)
}

// Quit removes an identity from every channel on a network and returns the
// sorted list of channels it was present in.
func (m *Membership) Quit(network, nick string) []string {
	nick = strings.ToLower(nick)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for p, set := range m.channels {
		if p.network != network {
			continue
		}
		if _, ok := set[nick]; ok {
			delete(set, nick)
			out = append(out, p.channel)
		}
	}
	sort.Strings(out)
	return out
}

// Rename moves an identity's presence from old to new across every channel
// on the network.
func (m *Membership) Rename(network, oldNick, newNick string) {
	oldNick = strings.ToLower(oldNick)
	newNick = strings.ToLower(newNick)
	m.mu.Lock()
	defer m.mu.Unlock()
	for p, set := range m.channels {
		if p.network != network {
			continue
		}
		if _, ok := set[oldNick]; ok {
			delete(set, oldNick)
			set[newNick] = struct{}{}
		}
	}
}

// Channels returns the sorted channels an identity is currently present in.
func (m *Membership) Channels(network, nick string) []string {
	nick = strings.ToLower(nick)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for p, set := range m.channels {
		if p.network != network {
			continue
		}
		if _, ok := set[nick]; ok {
			out = append(out, p.channel)
		}
	}
	sort.Strings(out)
	return out
}
