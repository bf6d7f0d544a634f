package chat

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"teamhq/internal/directory"
	"teamhq/internal/member"
)

var errBackend = errors.New("backend unavailable")

// memRepo is an in-memory MessageRepository and ReadStateRepository.
type memRepo struct {
	mu        sync.Mutex
	msgs      []Message
	queryErr  error
	insertErr error
	markErr   error
	// gate, when set, holds QueryMessages until a value arrives; started
	// is signalled once a query is waiting on it.
	gate    chan struct{}
	started chan struct{}

	marks int
}

func (r *memRepo) seed(msgs ...Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msgs...)
}

func (r *memRepo) InsertMessage(_ context.Context, m Message) (Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return Message{}, r.insertErr
	}
	r.msgs = append(r.msgs, m)
	return m, nil
}

func (r *memRepo) QueryMessages(ctx context.Context, f Filter) ([]Message, error) {
	r.mu.Lock()
	gate, started := r.gate, r.started
	r.mu.Unlock()
	if gate != nil {
		if started != nil {
			started <- struct{}{}
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.queryErr != nil {
		return nil, r.queryErr
	}
	var out []Message
	for _, m := range r.msgs {
		if f.Matches(m) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memRepo) MarkMessagesRead(_ context.Context, sender, receiver string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.marks++
	if r.markErr != nil {
		return 0, r.markErr
	}
	var n int64
	for i := range r.msgs {
		m := &r.msgs[i]
		if m.AuthorID == sender && m.ReceiverID == receiver && m.Unread() {
			m.Read = true
			n++
		}
	}
	return n, nil
}

func (r *memRepo) CountUnread(_ context.Context, sender, receiver string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if m.AuthorID == sender && m.ReceiverID == receiver && m.Unread() {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) UnreadBySender(_ context.Context, receiver string) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[string]int{}
	for _, m := range r.msgs {
		if m.ReceiverID == receiver && m.Unread() {
			counts[m.AuthorID]++
		}
	}
	return counts, nil
}

// memNotifier hands every pushed message to every open subscription,
// regardless of filter, to model provider over-delivery.
type memNotifier struct {
	mu   sync.Mutex
	subs map[*memSub]Filter
	err  error
}

type memSub struct {
	n    *memNotifier
	ch   chan Message
	once sync.Once
}

func newNotifier() *memNotifier {
	return &memNotifier{subs: map[*memSub]Filter{}}
}

func (n *memNotifier) Subscribe(_ context.Context, f Filter) (Subscription, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return nil, n.err
	}
	s := &memSub{n: n, ch: make(chan Message, 64)}
	n.subs[s] = f
	return s, nil
}

func (n *memNotifier) push(m Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for s := range n.subs {
		s.ch <- m
	}
}

func (n *memNotifier) open() []Filter {
	n.mu.Lock()
	defer n.mu.Unlock()
	var fs []Filter
	for _, f := range n.subs {
		fs = append(fs, f)
	}
	return fs
}

func (s *memSub) Messages() <-chan Message { return s.ch }

func (s *memSub) Close() error {
	s.once.Do(func() {
		s.n.mu.Lock()
		delete(s.n.subs, s)
		s.n.mu.Unlock()
		close(s.ch)
	})
	return nil
}

type memChannels struct {
	mu      sync.Mutex
	byID    map[string]directory.Channel
	err     error
	deletes int
}

func newMemChannels(cs ...directory.Channel) *memChannels {
	m := &memChannels{byID: map[string]directory.Channel{}}
	for _, c := range cs {
		m.byID[c.ID] = c
	}
	return m
}

func (m *memChannels) ListChannels(context.Context) ([]directory.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []directory.Channel
	for _, c := range m.byID {
		out = append(out, c)
	}
	return out, nil
}

func (m *memChannels) InsertChannel(_ context.Context, c *directory.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, existing := range m.byID {
		if existing.Slug == c.Slug {
			return directory.ErrSlugTaken
		}
	}
	m.byID[c.ID] = *c
	return nil
}

func (m *memChannels) DeleteChannel(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	if m.err != nil {
		return m.err
	}
	if _, ok := m.byID[id]; !ok {
		return directory.ErrChannelNotFound
	}
	delete(m.byID, id)
	return nil
}

type memMembers []member.Member

func (m memMembers) ListMembers(context.Context) ([]member.Member, error) {
	return slices.Clone(m), nil
}

// recorder is a Listener that keeps everything it is told.
type recorder struct {
	mu         sync.Mutex
	appended   []Message
	starts     []bool
	retracted  []string
	unread     []map[string]int
	selections []Conversation
	notices    []error
}

func (r *recorder) MessageAppended(m Message, startsGroup bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appended = append(r.appended, m)
	r.starts = append(r.starts, startsGroup)
}

func (r *recorder) MessageRetracted(_ Message, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retracted = append(r.retracted, text)
}

func (r *recorder) UnreadChanged(counts map[string]int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unread = append(r.unread, counts)
}

func (r *recorder) SelectionChanged(conv Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selections = append(r.selections, conv)
}

func (r *recorder) Notice(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, err)
}

func (r *recorder) appendedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, m := range r.appended {
		ids = append(ids, m.ID)
	}
	return ids
}

// startsOf returns the group flag pushed with message id.
func (r *recorder) startsOf(id string) (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.appended {
		if m.ID == id {
			return r.starts[i], true
		}
	}
	return false, false
}

func (r *recorder) lastUnread() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.unread) == 0 {
		return nil
	}
	return r.unread[len(r.unread)-1]
}

func (r *recorder) noticeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notices)
}

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return t0.Add(time.Duration(minutes) * time.Minute)
}

func dm(id, from, to string, minute int) Message {
	return Message{ID: id, AuthorID: from, ReceiverID: to, Body: id, CreatedAt: at(minute)}
}

func post(id, from, channel string, minute int) Message {
	return Message{ID: id, AuthorID: from, ChannelID: channel, Body: id, CreatedAt: at(minute)}
}
