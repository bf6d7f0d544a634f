package chat

import (
	"context"

	"teamhq/internal/directory"
)

// MessageRepository persists messages. QueryMessages returns matches
// ordered by creation time, oldest first.
type MessageRepository interface {
	InsertMessage(ctx context.Context, m Message) (Message, error)
	QueryMessages(ctx context.Context, f Filter) ([]Message, error)
}

// ReadStateRepository mutates and counts the read flag on direct messages.
type ReadStateRepository interface {
	// MarkMessagesRead sets read on every unread message from sender to
	// receiver in one statement and returns how many changed.
	MarkMessagesRead(ctx context.Context, sender, receiver string) (int64, error)
	CountUnread(ctx context.Context, sender, receiver string) (int, error)
	// UnreadBySender counts unread messages to receiver grouped by sender.
	UnreadBySender(ctx context.Context, receiver string) (map[string]int, error)
}

// ChannelRepository creates and removes channels.
type ChannelRepository interface {
	InsertChannel(ctx context.Context, c *directory.Channel) error
	DeleteChannel(ctx context.Context, id string) error
}

// Notifier delivers newly inserted messages matching a filter. Delivery is
// best effort: messages may arrive late, out of order or more than once,
// and a provider may deliver messages outside the filter.
type Notifier interface {
	Subscribe(ctx context.Context, f Filter) (Subscription, error)
}

// Subscription is one live notifier stream. Close stops delivery; the
// Messages channel is closed once the provider has let go of it.
type Subscription interface {
	Messages() <-chan Message
	Close() error
}
