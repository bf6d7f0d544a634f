package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (r *Repository) InsertMessage(ctx context.Context, m Message) (Message, error) {
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	// Channel messages carry no read state.
	var read any
	if m.IsDirect() {
		read = m.Read
	}

	query := `INSERT INTO messages (id, sender_id, channel_id, receiver_id, content, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`
	err := r.db.QueryRowContext(ctx, query,
		m.ID, m.AuthorID, nullable(m.ChannelID), nullable(m.ReceiverID), m.Body, read, m.CreatedAt,
	).Scan(&m.CreatedAt)
	if err != nil {
		return Message{}, err
	}
	return m, nil
}

// checkIDs rejects ids that Postgres could not cast to uuid.
func checkIDs(op string, ids ...string) error {
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, err := uuid.Parse(id); err != nil {
			return newError(ErrValidation, op, fmt.Errorf("malformed id %q", id))
		}
	}
	return nil
}

func (r *Repository) QueryMessages(ctx context.Context, f Filter) ([]Message, error) {
	if err := checkIDs("query_messages", f.ChannelID, f.Me, f.Peer, f.Recipient); err != nil {
		return nil, err
	}
	base := `SELECT id, sender_id, channel_id, receiver_id, content, read, created_at FROM messages `
	var (
		query string
		args  []any
	)
	switch {
	case f.ChannelID != "":
		query = base + `WHERE channel_id = $1 ORDER BY created_at ASC, id ASC`
		args = []any{f.ChannelID}
	case f.Peer != "" && f.Me != "":
		query = base + `WHERE channel_id IS NULL
			AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
			ORDER BY created_at ASC, id ASC`
		args = []any{f.Me, f.Peer}
	case f.Recipient != "":
		query = base + `WHERE channel_id IS NULL AND receiver_id = $1 ORDER BY created_at ASC, id ASC`
		args = []any{f.Recipient}
	default:
		return nil, errors.New("query needs a channel, a member pair or a recipient")
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var (
			m          Message
			channelID  sql.NullString
			receiverID sql.NullString
			read       sql.NullBool
		)
		if err := rows.Scan(&m.ID, &m.AuthorID, &channelID, &receiverID, &m.Body, &read, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.ChannelID = channelID.String
		m.ReceiverID = receiverID.String
		// A NULL read flag counts as unread.
		m.Read = read.Valid && read.Bool
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *Repository) MarkMessagesRead(ctx context.Context, sender, receiver string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET read = TRUE
		WHERE channel_id IS NULL AND sender_id = $1 AND receiver_id = $2 AND read IS NOT TRUE`,
		sender, receiver)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repository) CountUnread(ctx context.Context, sender, receiver string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages
		WHERE channel_id IS NULL AND sender_id = $1 AND receiver_id = $2 AND read IS NOT TRUE`,
		sender, receiver).Scan(&n)
	return n, err
}

func (r *Repository) UnreadBySender(ctx context.Context, receiver string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT sender_id, COUNT(*) FROM messages
		WHERE channel_id IS NULL AND receiver_id = $1 AND read IS NOT TRUE
		GROUP BY sender_id`, receiver)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var (
			sender string
			n      int
		)
		if err := rows.Scan(&sender, &n); err != nil {
			return nil, fmt.Errorf("scan unread: %w", err)
		}
		counts[sender] = n
	}
	return counts, rows.Err()
}
