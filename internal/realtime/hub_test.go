package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamhq/internal/chat"
	"teamhq/internal/directory"
)

func startHub(t *testing.T, opts ...Option) (*Hub, context.CancelFunc) {
	t.Helper()
	h := NewHub(nil, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h, cancel
}

func receive(t *testing.T, ch <-chan chat.Message) chat.Message {
	t.Helper()
	select {
	case m, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return chat.Message{}
}

func assertQuiet(t *testing.T, ch <-chan chat.Message) {
	t.Helper()
	select {
	case m, ok := <-ch:
		if ok {
			t.Fatalf("unexpected message %q", m.ID)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_DeliversMatchingMessages(t *testing.T) {
	h, _ := startHub(t)
	ctx := context.Background()

	general, err := h.Subscribe(ctx, chat.Filter{ChannelID: "general"})
	require.NoError(t, err)
	defer general.Close()
	dm, err := h.Subscribe(ctx, chat.Filter{Me: "alice", Peer: "bob"})
	require.NoError(t, err)
	defer dm.Close()

	require.NoError(t, h.PublishMessage(ctx, chat.Message{ID: "m1", AuthorID: "carol", ChannelID: "general", Body: "hi"}))
	require.NoError(t, h.PublishMessage(ctx, chat.Message{ID: "m2", AuthorID: "bob", ReceiverID: "alice", Body: "psst"}))
	require.NoError(t, h.PublishMessage(ctx, chat.Message{ID: "m3", AuthorID: "bob", ReceiverID: "carol", Body: "other"}))

	assert.Equal(t, "m1", receive(t, general.Messages()).ID)
	assert.Equal(t, "m2", receive(t, dm.Messages()).ID)
	assertQuiet(t, general.Messages())
	assertQuiet(t, dm.Messages())
}

func TestHub_CloseStopsDelivery(t *testing.T) {
	h, _ := startHub(t)
	ctx := context.Background()

	sub, err := h.Subscribe(ctx, chat.Filter{ChannelID: "general"})
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close(), "second close is a no-op")

	require.NoError(t, h.PublishMessage(ctx, chat.Message{ID: "m1", ChannelID: "general"}))
	_, ok := <-sub.Messages()
	assert.False(t, ok, "messages channel is closed after Close")
}

func TestHub_FullQueueDropsInsteadOfBlocking(t *testing.T) {
	h, _ := startHub(t, WithBuffer(1))
	ctx := context.Background()

	sub, err := h.Subscribe(ctx, chat.Filter{ChannelID: "general"})
	require.NoError(t, err)
	defer sub.Close()
	barrier, err := h.Subscribe(ctx, chat.Filter{ChannelID: "barrier"})
	require.NoError(t, err)
	defer barrier.Close()

	for _, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, h.PublishMessage(ctx, chat.Message{ID: id, ChannelID: "general"}))
	}
	// The hub handles events in order; once the barrier arrives m3 was already offered.
	require.NoError(t, h.PublishMessage(ctx, chat.Message{ID: "b", ChannelID: "barrier"}))
	receive(t, barrier.Messages())

	assert.Equal(t, "m1", receive(t, sub.Messages()).ID)
	assertQuiet(t, sub.Messages())
}

func TestHub_StoppedHub(t *testing.T) {
	h, cancel := startHub(t)
	ctx := context.Background()

	sub, err := h.Subscribe(ctx, chat.Filter{ChannelID: "general"})
	require.NoError(t, err)

	cancel()
	_, ok := <-sub.Messages()
	assert.False(t, ok, "stopping the hub closes live subscriptions")
	require.NoError(t, sub.Close(), "close after stop must not block")

	_, err = h.Subscribe(ctx, chat.Filter{ChannelID: "general"})
	assert.True(t, errors.Is(err, ErrHubClosed))
	assert.ErrorIs(t, h.PublishMessage(ctx, chat.Message{ID: "m1", ChannelID: "general"}), ErrHubClosed)
}

func TestHub_RejectsEmptyFilter(t *testing.T) {
	h, _ := startHub(t)
	_, err := h.Subscribe(context.Background(), chat.Filter{})
	assert.Error(t, err)
}

type memMessages struct {
	fail  error
	saved []chat.Message
}

func (m *memMessages) InsertMessage(_ context.Context, msg chat.Message) (chat.Message, error) {
	if m.fail != nil {
		return chat.Message{}, m.fail
	}
	m.saved = append(m.saved, msg)
	return msg, nil
}

func (m *memMessages) QueryMessages(context.Context, chat.Filter) ([]chat.Message, error) {
	return m.saved, nil
}

func TestMessages_PublishesOnlyAfterWrite(t *testing.T) {
	h, _ := startHub(t)
	ctx := context.Background()
	sub, err := h.Subscribe(ctx, chat.Filter{ChannelID: "general"})
	require.NoError(t, err)
	defer sub.Close()

	repo := &memMessages{}
	pub := NewMessages(repo, h)

	_, err = pub.InsertMessage(ctx, chat.Message{ID: "ok", ChannelID: "general", AuthorID: "alice", Body: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", receive(t, sub.Messages()).ID)

	repo.fail = errors.New("disk full")
	_, err = pub.InsertMessage(ctx, chat.Message{ID: "lost", ChannelID: "general", AuthorID: "alice", Body: "x"})
	require.Error(t, err)
	assertQuiet(t, sub.Messages())
}

type memChannels struct {
	missing bool
	fail    error
}

func (m *memChannels) InsertChannel(context.Context, *directory.Channel) error { return nil }

func (m *memChannels) DeleteChannel(context.Context, string) error {
	if m.fail != nil {
		return m.fail
	}
	if m.missing {
		return directory.ErrChannelNotFound
	}
	return nil
}

func TestChannels_AnnouncesLifecycle(t *testing.T) {
	h, _ := startHub(t)
	ctx := context.Background()
	events, err := h.SubscribeChannels(ctx)
	require.NoError(t, err)
	defer events.Close()

	repo := &memChannels{}
	pub := NewChannels(repo, h)

	require.NoError(t, pub.InsertChannel(ctx, &directory.Channel{ID: "c1", Slug: "#planning-sync"}))
	require.NoError(t, pub.DeleteChannel(ctx, "c1"))
	repo.missing = true
	require.ErrorIs(t, pub.DeleteChannel(ctx, "c1"), directory.ErrChannelNotFound)
	repo.fail = errors.New("connection reset")
	require.Error(t, pub.DeleteChannel(ctx, "c2"))

	next := func() Event {
		select {
		case ev := <-events.Events():
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for channel event")
		}
		return Event{}
	}
	created := next()
	assert.Equal(t, EventChannelCreated, created.Kind)
	assert.Equal(t, "#planning-sync", created.Channel.Slug)
	deleted := next()
	assert.Equal(t, EventChannelDeleted, deleted.Kind)
	assert.Equal(t, "c1", deleted.Channel.ID)
	// Already gone: still announced so stale copies elsewhere are dropped.
	again := next()
	assert.Equal(t, EventChannelDeleted, again.Kind)
	assert.Equal(t, "c1", again.Channel.ID)

	select {
	case ev := <-events.Events():
		t.Fatalf("unexpected event %s", ev.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}
