// Package realtime fans change notifications out to live subscriptions.
// With a Redis client every published event goes through one Redis pub/sub
// channel so all server instances see it; without one the hub loops events
// back in-process.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"teamhq/internal/chat"
	"teamhq/internal/directory"
	"teamhq/internal/logging"
)

var ErrHubClosed = errors.New("realtime hub is not running")

type EventKind string

const (
	EventMessage        EventKind = "message"
	EventChannelCreated EventKind = "channel_created"
	EventChannelDeleted EventKind = "channel_deleted"
)

// Event is the payload published on the Redis channel.
type Event struct {
	Kind    EventKind          `json:"kind"`
	Message *chat.Message      `json:"message,omitempty"`
	Channel *directory.Channel `json:"channel,omitempty"`
}

type subscriber struct {
	match func(Event) bool
	// offer must not block; false means the event was dropped.
	offer func(Event) bool
	close func()
}

type Hub struct {
	subscribers map[*subscriber]bool
	broadcast   chan Event       // From Redis (or loopback) -> subscribers
	register    chan *subscriber // New subscription
	unregister  chan *subscriber // Subscription closed
	redis       *redis.Client
	channel     string
	buffer      int
	log         zerolog.Logger

	done     chan struct{}
	doneOnce sync.Once
}

type Option func(*Hub)

// WithChannel sets the Redis pub/sub channel name.
func WithChannel(name string) Option {
	return func(h *Hub) {
		if name != "" {
			h.channel = name
		}
	}
}

// WithBuffer sets the per-subscription queue length.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// NewHub creates a hub. A nil redisClient keeps delivery in-process.
func NewHub(redisClient *redis.Client, opts ...Option) *Hub {
	h := &Hub{
		subscribers: make(map[*subscriber]bool),
		broadcast:   make(chan Event),
		register:    make(chan *subscriber),
		unregister:  make(chan *subscriber),
		redis:       redisClient,
		channel:     "teamhq-messages",
		buffer:      256,
		log:         logging.Component("realtime"),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run owns the subscriber set until ctx is cancelled, then closes every
// subscription.
func (h *Hub) Run(ctx context.Context) {
	defer h.doneOnce.Do(func() { close(h.done) })
	for {
		select {
		case <-ctx.Done():
			for sub := range h.subscribers {
				delete(h.subscribers, sub)
				sub.close()
			}
			return

		case sub := <-h.register:
			h.subscribers[sub] = true

		case sub := <-h.unregister:
			// Always check if they exist to avoid double-close panics
			if _, ok := h.subscribers[sub]; ok {
				delete(h.subscribers, sub)
				sub.close()
			}

		case ev := <-h.broadcast:
			for sub := range h.subscribers {
				if !sub.match(ev) {
					continue
				}
				if !sub.offer(ev) {
					h.log.Warn().Str("kind", string(ev.Kind)).Msg("subscriber queue full; event dropped")
				}
			}
		}
	}
}

// SubscribeToRedis feeds events from the Redis channel into the hub until
// ctx is cancelled. It returns at once when the hub has no Redis client.
func (h *Hub) SubscribeToRedis(ctx context.Context) error {
	if h.redis == nil {
		return nil
	}
	pubsub := h.redis.Subscribe(ctx, h.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", h.channel, err)
	}
	h.log.Info().Str("channel", h.channel).Msg("listening on redis")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				h.log.Warn().Err(err).Msg("dropping malformed event")
				continue
			}
			if err := h.dispatch(ctx, ev); err != nil {
				return nil
			}
		}
	}
}

func (h *Hub) dispatch(ctx context.Context, ev Event) error {
	select {
	case h.broadcast <- ev:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish announces ev to every instance.
func (h *Hub) Publish(ctx context.Context, ev Event) error {
	if h.redis == nil {
		return h.dispatch(ctx, ev)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return h.redis.Publish(ctx, h.channel, payload).Err()
}

func (h *Hub) PublishMessage(ctx context.Context, m chat.Message) error {
	return h.Publish(ctx, Event{Kind: EventMessage, Message: &m})
}

func (h *Hub) add(ctx context.Context, sub *subscriber) error {
	select {
	case h.register <- sub:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) remove(sub *subscriber) {
	select {
	case h.unregister <- sub:
	case <-h.done:
	}
}

type messageSubscription struct {
	hub  *Hub
	sub  *subscriber
	ch   chan chat.Message
	once sync.Once
}

func (s *messageSubscription) Messages() <-chan chat.Message { return s.ch }

func (s *messageSubscription) Close() error {
	s.once.Do(func() { s.hub.remove(s.sub) })
	return nil
}

// Subscribe implements chat.Notifier.
func (h *Hub) Subscribe(ctx context.Context, f chat.Filter) (chat.Subscription, error) {
	if f.IsZero() {
		return nil, errors.New("empty subscription filter")
	}
	ch := make(chan chat.Message, h.buffer)
	sub := &subscriber{
		match: func(ev Event) bool {
			return ev.Kind == EventMessage && ev.Message != nil && f.Matches(*ev.Message)
		},
		offer: func(ev Event) bool {
			select {
			case ch <- *ev.Message:
				return true
			default:
				return false
			}
		},
		close: func() { close(ch) },
	}
	if err := h.add(ctx, sub); err != nil {
		return nil, err
	}
	return &messageSubscription{hub: h, sub: sub, ch: ch}, nil
}

// ChannelSubscription streams channel created/deleted events.
type ChannelSubscription struct {
	hub  *Hub
	sub  *subscriber
	ch   chan Event
	once sync.Once
}

func (s *ChannelSubscription) Events() <-chan Event { return s.ch }

func (s *ChannelSubscription) Close() error {
	s.once.Do(func() { s.hub.remove(s.sub) })
	return nil
}

func (h *Hub) SubscribeChannels(ctx context.Context) (*ChannelSubscription, error) {
	ch := make(chan Event, h.buffer)
	sub := &subscriber{
		match: func(ev Event) bool {
			return (ev.Kind == EventChannelCreated || ev.Kind == EventChannelDeleted) && ev.Channel != nil
		},
		offer: func(ev Event) bool {
			select {
			case ch <- ev:
				return true
			default:
				return false
			}
		},
		close: func() { close(ch) },
	}
	if err := h.add(ctx, sub); err != nil {
		return nil, err
	}
	return &ChannelSubscription{hub: h, sub: sub, ch: ch}, nil
}
