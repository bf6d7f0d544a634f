package chat

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"teamhq/internal/logging"
)

const defaultDedupeWindow = 512

// Binder owns at most one live subscription, scoped to the active
// conversation. Bind closes the previous subscription and waits for its
// delivery loop to exit before subscribing again, so nothing received under
// an old binding is delivered once a new Bind has started.
//
// deliver runs on the binding's goroutine and must not call Bind or Unbind.
type Binder struct {
	notifier Notifier
	me       string
	deliver  func(Message)
	window   int
	log      zerolog.Logger

	mu  sync.Mutex
	cur *binding
}

type binding struct {
	conv   Conversation
	filter Filter
	sub    Subscription
	seen   *lru.Cache
	cancel context.CancelFunc
	done   chan struct{}
}

type BinderOption func(*Binder)

// WithDedupeWindow sets how many delivered message ids a binding remembers.
func WithDedupeWindow(n int) BinderOption {
	return func(b *Binder) {
		if n > 0 {
			b.window = n
		}
	}
}

func WithBinderLogger(l zerolog.Logger) BinderOption {
	return func(b *Binder) { b.log = l }
}

func NewBinder(n Notifier, me string, deliver func(Message), opts ...BinderOption) *Binder {
	b := &Binder{
		notifier: n,
		me:       me,
		deliver:  deliver,
		window:   defaultDedupeWindow,
		log:      logging.Component("chat"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Bind replaces the current binding with one for conv. A nil conv only
// tears down. The binding lives until the next Bind, Unbind or until ctx
// is cancelled. A failed subscribe leaves the Binder unbound.
func (b *Binder) Bind(ctx context.Context, conv Conversation) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.teardownLocked()
	if conv == nil {
		return nil
	}

	filter := FilterFor(b.me, conv)
	sub, err := b.notifier.Subscribe(ctx, filter)
	if err != nil {
		b.log.Warn().Err(err).Str("conversation", conv.Key()).Msg("realtime binding failed; conversation stays usable without live push")
		return newError(ErrSubscription, "bind", err)
	}
	seen, err := lru.New(b.window)
	if err != nil {
		sub.Close()
		return newError(ErrSubscription, "bind", err)
	}

	bctx, cancel := context.WithCancel(ctx)
	bd := &binding{
		conv:   conv,
		filter: filter,
		sub:    sub,
		seen:   seen,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	b.cur = bd
	go b.pump(bctx, bd)

	b.log.Debug().Str("conversation", conv.Key()).Msg("bound")
	return nil
}

func (b *Binder) Unbind() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.teardownLocked()
}

// Bound returns the conversation of the live binding, or nil when unbound.
func (b *Binder) Bound() Conversation {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cur == nil {
		return nil
	}
	return b.cur.conv
}

func (b *Binder) teardownLocked() {
	bd := b.cur
	if bd == nil {
		return
	}
	b.cur = nil
	bd.cancel()
	if err := bd.sub.Close(); err != nil {
		b.log.Debug().Err(err).Str("conversation", bd.conv.Key()).Msg("closing subscription")
	}
	<-bd.done
	b.log.Debug().Str("conversation", bd.conv.Key()).Msg("unbound")
}

func (b *Binder) pump(ctx context.Context, bd *binding) {
	defer close(bd.done)
	msgs := bd.sub.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-msgs:
			if !ok {
				if ctx.Err() == nil {
					b.log.Warn().Str("conversation", bd.conv.Key()).Msg("realtime stream ended by provider")
				}
				return
			}
			if ctx.Err() != nil {
				return
			}
			if !bd.filter.Matches(m) {
				continue
			}
			if found, _ := bd.seen.ContainsOrAdd(m.ID, struct{}{}); found {
				continue
			}
			b.deliver(m)
		}
	}
}
