package chat

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store holds the message history of the active conversation only. It is
// emptied on every switch and filled by Load; it is not a cache.
type Store struct {
	me    string
	repo  MessageRepository
	now   func() time.Time
	newID func() string

	// Observers of optimistic sends; nil means nobody listens.
	onPending func(m Message)
	onRetract func(m Message, text string)

	mu     sync.Mutex
	active Conversation
	gen    uint64
	msgs   []Message
	index  map[string]int
}

func NewStore(me string, repo MessageRepository) *Store {
	return &Store{
		me:    me,
		repo:  repo,
		now:   time.Now,
		newID: uuid.NewString,
		index: map[string]int{},
	}
}

// Open makes conv the active conversation and drops the held history.
// Loads issued before Open are discarded when they complete.
func (s *Store) Open(conv Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = conv
	s.gen++
	s.msgs = nil
	s.index = map[string]int{}
}

func (s *Store) Active() Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Load replaces the held history with the full history of conv. On failure
// the held history is left as it was. Messages held but absent from the
// fetched history (optimistic sends still in flight, pushes that raced the
// query) are kept after it.
func (s *Store) Load(ctx context.Context, conv Conversation) error {
	if conv == nil {
		return newError(ErrValidation, "load", errors.New("no conversation"))
	}

	s.mu.Lock()
	gen := s.gen
	current := SameConversation(s.active, conv)
	s.mu.Unlock()
	if !current {
		return ErrStale
	}

	fetched, err := s.repo.QueryMessages(ctx, FilterFor(s.me, conv))
	if err != nil {
		return newError(ErrLoad, "load", err)
	}
	sort.SliceStable(fetched, func(i, j int) bool {
		return fetched[i].CreatedAt.Before(fetched[j].CreatedAt)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || !SameConversation(s.active, conv) {
		return ErrStale
	}

	seen := make(map[string]struct{}, len(fetched))
	merged := make([]Message, 0, len(fetched)+len(s.msgs))
	for _, m := range fetched {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		merged = append(merged, m)
	}
	for _, m := range s.msgs {
		if _, ok := seen[m.ID]; !ok {
			merged = append(merged, m)
		}
	}
	s.msgs = merged
	s.reindex()
	return nil
}

// Append adds m at the end when it belongs to the active conversation and
// is not already held. A held message with the same id is refreshed in place
// instead. The result reports whether the sequence grew.
func (s *Store) Append(m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || !FilterFor(s.me, s.active).Matches(m) {
		return false
	}
	if i, ok := s.index[m.ID]; ok {
		s.msgs[i] = m
		return false
	}
	s.index[m.ID] = len(s.msgs)
	s.msgs = append(s.msgs, m)
	return true
}

// Send appends the message optimistically, then persists it. When the
// write fails the optimistic entry is retracted and the returned *Error
// carries the original text.
func (s *Store) Send(ctx context.Context, conv Conversation, authorID, body string) (Message, error) {
	if conv == nil {
		return Message{}, &Error{Kind: ErrValidation, Op: "send", Text: body, Err: errors.New("no conversation selected")}
	}
	if strings.TrimSpace(body) == "" {
		return Message{}, &Error{Kind: ErrValidation, Op: "send", Text: body, Err: errors.New("message is empty")}
	}
	if d, ok := conv.(DirectConversation); ok && d.PeerID == authorID {
		return Message{}, &Error{Kind: ErrValidation, Op: "send", Text: body, Err: errors.New("cannot message yourself")}
	}

	msg := Message{
		ID:        s.newID(),
		AuthorID:  authorID,
		Body:      body,
		CreatedAt: s.now().UTC(),
	}
	Stamp(&msg, conv)

	edit := s.appendPending(msg)
	if edit.appended && s.onPending != nil {
		s.onPending(msg)
	}
	saved, err := s.repo.InsertMessage(ctx, msg)
	if err != nil {
		if edit.revert() && s.onRetract != nil {
			s.onRetract(msg, body)
		}
		return Message{}, &Error{Kind: ErrSend, Op: "send", Text: body, Err: err}
	}
	edit.commit(saved)
	return saved, nil
}

// pendingAppend is the reversible edit behind an optimistic send.
type pendingAppend struct {
	s        *Store
	id       string
	gen      uint64
	appended bool
}

func (s *Store) appendPending(m Message) pendingAppend {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	return pendingAppend{s: s, id: m.ID, gen: gen, appended: s.Append(m)}
}

// revert reports whether the optimistic entry was still held and removed.
func (p pendingAppend) revert() bool {
	if !p.appended {
		return false
	}
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != p.gen {
		return false
	}
	i, ok := s.index[p.id]
	if !ok {
		return false
	}
	s.msgs = slices.Delete(s.msgs, i, i+1)
	s.reindex()
	return true
}

func (p pendingAppend) commit(saved Message) {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != p.gen {
		return
	}
	if i, ok := s.index[p.id]; ok {
		s.msgs[i] = saved
	}
}

// ObserveSends registers callbacks for the optimistic append of a send and
// for its retraction when persisting fails.
func (s *Store) ObserveSends(pending func(m Message), retract func(m Message, text string)) {
	s.onPending = pending
	s.onRetract = retract
}

// MarkReadLocal flips the read flag on held messages from peer to me.
func (s *Store) MarkReadLocal(peer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.msgs {
		if s.msgs[i].AuthorID == peer && s.msgs[i].ReceiverID == s.me {
			s.msgs[i].Read = true
		}
	}
}

// Messages returns a copy of the held history.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.msgs)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

// Filtered yields held messages whose body contains term, ignoring case.
// Each range over the result starts from a fresh snapshot.
func (s *Store) Filtered(term string) iter.Seq[Message] {
	needle := strings.ToLower(term)
	return func(yield func(Message) bool) {
		for _, m := range s.Messages() {
			if needle != "" && !strings.Contains(strings.ToLower(m.Body), needle) {
				continue
			}
			if !yield(m) {
				return
			}
		}
	}
}

// StartsGroup reports whether the held message id opens a new header group
// in the unfiltered history.
func (s *Store) StartsGroup(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return false
	}
	return i == 0 || s.msgs[i-1].AuthorID != s.msgs[i].AuthorID
}

// StartsGroupIn is StartsGroup over the view filtered by term. visible is
// false when id is not held or its body does not match term.
func (s *Store) StartsGroupIn(term, id string) (starts, visible bool) {
	for m, start := range WithGroupHeaders(s.Filtered(term)) {
		if m.ID == id {
			return start, true
		}
	}
	return false, false
}

func (s *Store) reindex() {
	s.index = make(map[string]int, len(s.msgs))
	for i, m := range s.msgs {
		s.index[m.ID] = i
	}
}

// WithGroupHeaders pairs every message of seq with whether it opens a
// header group: the first message, or one whose author differs from the
// message before it.
func WithGroupHeaders(seq iter.Seq[Message]) iter.Seq2[Message, bool] {
	return func(yield func(Message, bool) bool) {
		prev, first := "", true
		for m := range seq {
			start := first || m.AuthorID != prev
			first, prev = false, m.AuthorID
			if !yield(m, start) {
				return
			}
		}
	}
}
