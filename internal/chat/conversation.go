package chat

import "fmt"

// Conversation is either a ChannelConversation or a DirectConversation.
// A nil Conversation means nothing is selected.
type Conversation interface {
	// Key identifies the conversation, e.g. "channel:<id>" or "dm:<peer>".
	Key() string
	conversation()
}

type ChannelConversation struct {
	ChannelID string
}

func (c ChannelConversation) Key() string { return "channel:" + c.ChannelID }
func (ChannelConversation) conversation() {}

type DirectConversation struct {
	PeerID string
}

func (d DirectConversation) Key() string { return "dm:" + d.PeerID }
func (DirectConversation) conversation() {}

func Channel(id string) Conversation { return ChannelConversation{ChannelID: id} }

func Direct(peerID string) Conversation { return DirectConversation{PeerID: peerID} }

// SameConversation treats two nil conversations as equal.
func SameConversation(a, b Conversation) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Key() == b.Key()
}

// Stamp sets m's destination fields for conv.
func Stamp(m *Message, conv Conversation) {
	switch c := conv.(type) {
	case ChannelConversation:
		m.ChannelID, m.ReceiverID = c.ChannelID, ""
	case DirectConversation:
		m.ChannelID, m.ReceiverID = "", c.PeerID
	default:
		panic(fmt.Sprintf("chat: unknown conversation %T", conv))
	}
}

// ConversationRef is the wire form of a Conversation.
type ConversationRef struct {
	Kind string `json:"kind"` // "channel", "direct" or "none"
	ID   string `json:"id,omitempty"`
}

func RefOf(conv Conversation) ConversationRef {
	switch c := conv.(type) {
	case ChannelConversation:
		return ConversationRef{Kind: "channel", ID: c.ChannelID}
	case DirectConversation:
		return ConversationRef{Kind: "direct", ID: c.PeerID}
	default:
		return ConversationRef{Kind: "none"}
	}
}

func (r ConversationRef) Conversation() (Conversation, error) {
	switch r.Kind {
	case "channel":
		if r.ID == "" {
			return nil, fmt.Errorf("channel reference without id")
		}
		return Channel(r.ID), nil
	case "direct":
		if r.ID == "" {
			return nil, fmt.Errorf("direct reference without peer id")
		}
		return Direct(r.ID), nil
	case "none", "":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown conversation kind %q", r.Kind)
}
