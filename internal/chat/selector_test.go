package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectorTransitions(t *testing.T) {
	s := NewSelector("ann")
	require.Nil(t, s.Active())

	s.SelectChannel("general")
	s.SetSearch("deploy")
	s.SetOpenMenu("members")
	require.Equal(t, Channel("general"), s.Active())

	require.True(t, s.SelectDirect("bob"))
	require.Equal(t, Direct("bob"), s.Active())
	require.Equal(t, Transient{}, s.Transient(), "switching clears transient state")
	peer, ok := s.ActivePeer()
	require.True(t, ok)
	require.Equal(t, "bob", peer)

	require.False(t, s.SelectDirect("ann"))
	require.Equal(t, Direct("bob"), s.Active(), "self selection is rejected")

	s.Close()
	require.Nil(t, s.Active())
	_, ok = s.ActivePeer()
	require.False(t, ok)
}

func TestFilterMatches(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		msg    Message
		want   bool
	}{
		{"channel hit", FilterFor("ann", Channel("general")), post("1", "bob", "general", 0), true},
		{"channel miss", FilterFor("ann", Channel("general")), post("1", "bob", "random", 0), false},
		{"dm inbound", FilterFor("ann", Direct("bob")), dm("1", "bob", "ann", 0), true},
		{"dm outbound", FilterFor("ann", Direct("bob")), dm("1", "ann", "bob", 0), true},
		{"dm other pair", FilterFor("ann", Direct("bob")), dm("1", "bob", "carl", 0), false},
		{"dm ignores channel posts", FilterFor("ann", Direct("bob")), post("1", "bob", "general", 0), false},
		{"inbox", InboxFilter("ann"), dm("1", "carl", "ann", 0), true},
		{"inbox skips sent", InboxFilter("ann"), dm("1", "ann", "carl", 0), false},
		{"none", FilterFor("ann", nil), post("1", "bob", "general", 0), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.filter.Matches(tc.msg))
		})
	}
	assert.True(t, FilterFor("ann", nil).IsZero())
}

func TestStampAndConversationOf(t *testing.T) {
	m := Message{ID: "1", AuthorID: "ann", ChannelID: "stale"}
	Stamp(&m, Direct("bob"))
	require.Empty(t, m.ChannelID)
	require.Equal(t, "bob", m.ReceiverID)
	require.NoError(t, m.Validate())
	require.True(t, SameConversation(Direct("bob"), ConversationOf("ann", m)))
	require.True(t, SameConversation(Direct("ann"), ConversationOf("bob", m)))

	Stamp(&m, Channel("general"))
	require.Empty(t, m.ReceiverID)
	require.True(t, SameConversation(Channel("general"), ConversationOf("ann", m)))
}

func TestConversationRefJSON(t *testing.T) {
	raw, err := json.Marshal(RefOf(Direct("bob")))
	require.NoError(t, err)
	require.JSONEq(t, `{"kind":"direct","id":"bob"}`, string(raw))

	var ref ConversationRef
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"channel","id":"general"}`), &ref))
	conv, err := ref.Conversation()
	require.NoError(t, err)
	require.Equal(t, Channel("general"), conv)

	conv, err = RefOf(nil).Conversation()
	require.NoError(t, err)
	require.Nil(t, conv)

	_, err = ConversationRef{Kind: "group"}.Conversation()
	require.Error(t, err)
}

func TestMessageValidate(t *testing.T) {
	require.Error(t, Message{ID: "1", AuthorID: "a"}.Validate())
	require.Error(t, Message{ID: "1", AuthorID: "a", ChannelID: "c", ReceiverID: "b"}.Validate())
	require.NoError(t, post("1", "a", "c", 0).Validate())
	require.True(t, dm("1", "a", "b", 0).Unread())
	require.False(t, post("1", "a", "c", 0).Unread())
}
