package chat

import "sync"

// Transient is view state that does not survive a conversation switch.
type Transient struct {
	SearchTerm string
	OpenMenu   string
}

// Selector tracks the single active conversation of one member.
type Selector struct {
	me string

	mu        sync.RWMutex
	active    Conversation
	transient Transient
}

func NewSelector(me string) *Selector {
	return &Selector{me: me}
}

func (s *Selector) SelectChannel(id string) {
	s.set(Channel(id))
}

// SelectDirect reports false, leaving the state untouched, when peerID is
// the member's own id.
func (s *Selector) SelectDirect(peerID string) bool {
	if peerID == s.me {
		return false
	}
	s.set(Direct(peerID))
	return true
}

func (s *Selector) Close() {
	s.set(nil)
}

func (s *Selector) set(conv Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = conv
	s.transient = Transient{}
}

func (s *Selector) Active() Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// ActivePeer returns the peer of an open direct conversation.
func (s *Selector) ActivePeer() (string, bool) {
	d, ok := s.Active().(DirectConversation)
	return d.PeerID, ok
}

func (s *Selector) Transient() Transient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transient
}

func (s *Selector) SetSearch(term string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transient.SearchTerm = term
}

func (s *Selector) SetOpenMenu(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transient.OpenMenu = name
}
