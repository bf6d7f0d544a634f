// Package directory holds the roster of team members and named channels that
// every messaging component reads from.
package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"teamhq/internal/member"
)

type MemberSource interface {
	ListMembers(ctx context.Context) ([]member.Member, error)
}

type ChannelSource interface {
	ListChannels(ctx context.Context) ([]Channel, error)
}

// Directory is an eventually consistent snapshot of members and channels.
// Refresh replaces it wholesale; PutChannel and RemoveChannel patch it when a
// change notification arrives between refreshes.
type Directory struct {
	members  MemberSource
	channels ChannelSource

	mu         sync.RWMutex
	memberByID map[string]member.Member
	channelIDs map[string]Channel
}

func New(members MemberSource, channels ChannelSource) *Directory {
	return &Directory{
		members:    members,
		channels:   channels,
		memberByID: map[string]member.Member{},
		channelIDs: map[string]Channel{},
	}
}

func (d *Directory) Refresh(ctx context.Context) error {
	members, err := d.members.ListMembers(ctx)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}
	channels, err := d.channels.ListChannels(ctx)
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}

	byID := make(map[string]member.Member, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}
	chans := make(map[string]Channel, len(channels))
	for _, c := range channels {
		chans[c.ID] = c
	}

	d.mu.Lock()
	d.memberByID = byID
	d.channelIDs = chans
	d.mu.Unlock()
	return nil
}

// Members returns the roster ordered by name.
func (d *Directory) Members() []member.Member {
	d.mu.RLock()
	out := make([]member.Member, 0, len(d.memberByID))
	for _, m := range d.memberByID {
		out = append(out, m)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (d *Directory) Member(id string) (member.Member, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.memberByID[id]
	return m, ok
}

// PutMember records an edited member without a full refresh.
func (d *Directory) PutMember(m member.Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.memberByID[m.ID] = m
}

// SetStatus records a presence change without a full refresh.
func (d *Directory) SetStatus(id string, status member.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if m, ok := d.memberByID[id]; ok {
		m.Status = status
		d.memberByID[id] = m
	}
}

// Channels returns channels in creation order.
func (d *Directory) Channels() []Channel {
	d.mu.RLock()
	out := make([]Channel, 0, len(d.channelIDs))
	for _, c := range d.channelIDs {
		out = append(out, c)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Slug < out[j].Slug
	})
	return out
}

func (d *Directory) Channel(id string) (Channel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.channelIDs[id]
	return c, ok
}

func (d *Directory) PutChannel(c Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channelIDs[c.ID] = c
}

// RemoveChannel reports whether the channel was present.
func (d *Directory) RemoveChannel(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.channelIDs[id]; !ok {
		return false
	}
	delete(d.channelIDs, id)
	return true
}
