package chat

import (
	"context"
	"errors"
)

// Tracker marks direct messages read and counts what is still unread.
type Tracker struct {
	repo ReadStateRepository
}

func NewTracker(repo ReadStateRepository) *Tracker {
	return &Tracker{repo: repo}
}

// MarkRead marks every unread message from peer to me as read in a single
// store call. Calling it again with nothing new is a no-op.
func (t *Tracker) MarkRead(ctx context.Context, me, peer string) (int64, error) {
	if err := checkPair(me, peer); err != nil {
		return 0, newError(ErrValidation, "mark_read", err)
	}
	n, err := t.repo.MarkMessagesRead(ctx, peer, me)
	if err != nil {
		return 0, newError(ErrLoad, "mark_read", err)
	}
	return n, nil
}

// UnreadCount returns how many messages from peer to me are unread.
func (t *Tracker) UnreadCount(ctx context.Context, me, peer string) (int, error) {
	if err := checkPair(me, peer); err != nil {
		return 0, newError(ErrValidation, "unread_count", err)
	}
	n, err := t.repo.CountUnread(ctx, peer, me)
	if err != nil {
		return 0, newError(ErrLoad, "unread_count", err)
	}
	return n, nil
}

// UnreadCounts returns unread counts for every peer with at least one
// unread message to me.
func (t *Tracker) UnreadCounts(ctx context.Context, me string) (map[string]int, error) {
	if me == "" {
		return nil, newError(ErrValidation, "unread_counts", errors.New("member id is required"))
	}
	counts, err := t.repo.UnreadBySender(ctx, me)
	if err != nil {
		return nil, newError(ErrLoad, "unread_counts", err)
	}
	if counts == nil {
		counts = map[string]int{}
	}
	return counts, nil
}

func checkPair(me, peer string) error {
	switch {
	case me == "" || peer == "":
		return errors.New("both member ids are required")
	case me == peer:
		return errors.New("no direct conversation with yourself")
	}
	return nil
}
