package chat

// Filter selects the messages relevant to one view. Exactly one of the
// three shapes is meaningful:
//
//	ChannelID        every message posted to that channel
//	Me + Peer        direct messages between the two members, either direction
//	Recipient        every direct message addressed to that member
type Filter struct {
	ChannelID string `json:"channel_id,omitempty"`
	Me        string `json:"me,omitempty"`
	Peer      string `json:"peer,omitempty"`
	Recipient string `json:"recipient,omitempty"`
}

// FilterFor scopes a filter to conv as seen by me. A nil conv matches nothing.
func FilterFor(me string, conv Conversation) Filter {
	switch c := conv.(type) {
	case ChannelConversation:
		return Filter{ChannelID: c.ChannelID}
	case DirectConversation:
		return Filter{Me: me, Peer: c.PeerID}
	}
	return Filter{}
}

// InboxFilter matches direct messages sent to me from anyone.
func InboxFilter(me string) Filter {
	return Filter{Recipient: me}
}

func (f Filter) Matches(m Message) bool {
	switch {
	case f.ChannelID != "":
		return m.ChannelID == f.ChannelID
	case f.Peer != "":
		if m.ChannelID != "" {
			return false
		}
		return (m.AuthorID == f.Me && m.ReceiverID == f.Peer) ||
			(m.AuthorID == f.Peer && m.ReceiverID == f.Me)
	case f.Recipient != "":
		return m.ChannelID == "" && m.ReceiverID == f.Recipient
	}
	return false
}

func (f Filter) IsZero() bool {
	return f == Filter{}
}
