package chat

import (
	"errors"
	"time"
)

// Message is one row of the messages table. Exactly one of ChannelID and
// ReceiverID is set. Read only means something for direct messages; a
// missing value in the store is read back as false (unread).
type Message struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"sender_id"`
	ChannelID  string    `json:"channel_id,omitempty"`
	ReceiverID string    `json:"receiver_id,omitempty"`
	Body       string    `json:"content"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}

func (m Message) IsDirect() bool {
	return m.ChannelID == "" && m.ReceiverID != ""
}

// Unread reports whether m is a direct message its receiver has not seen.
func (m Message) Unread() bool {
	return m.IsDirect() && !m.Read
}

func (m Message) Validate() error {
	switch {
	case m.ID == "":
		return errors.New("message id is required")
	case m.AuthorID == "":
		return errors.New("message author is required")
	case m.ChannelID != "" && m.ReceiverID != "":
		return errors.New("message cannot target both a channel and a member")
	case m.ChannelID == "" && m.ReceiverID == "":
		return errors.New("message needs a channel or a receiver")
	}
	return nil
}

// ConversationOf returns the conversation m belongs to as seen by me, or
// nil when me is neither side of a direct message.
func ConversationOf(me string, m Message) Conversation {
	switch {
	case m.ChannelID != "":
		return ChannelConversation{ChannelID: m.ChannelID}
	case m.AuthorID == me:
		return DirectConversation{PeerID: m.ReceiverID}
	case m.ReceiverID == me:
		return DirectConversation{PeerID: m.AuthorID}
	}
	return nil
}
