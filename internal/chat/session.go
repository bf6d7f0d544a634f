package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"teamhq/internal/directory"
	"teamhq/internal/logging"
	"teamhq/internal/member"
)

// Listener receives what a session pushes to its host. Calls arrive from
// delivery goroutines and must not block.
type Listener interface {
	MessageAppended(m Message, startsGroup bool)
	// MessageRetracted withdraws an optimistic message whose write failed;
	// text is what the member typed.
	MessageRetracted(m Message, text string)
	UnreadChanged(counts map[string]int)
	SelectionChanged(conv Conversation)
	Notice(err error)
}

// Row is one rendered line of the message pane.
type Row struct {
	Message     Message `json:"message"`
	StartsGroup bool    `json:"first_of_group"`
}

// Deps bundles the collaborators a Session talks to.
type Deps struct {
	Directory *directory.Directory
	Messages  MessageRepository
	ReadState ReadStateRepository
	Channels  *ChannelManager
	Notifier  Notifier

	DedupeWindow int
}

// Session is one member's messaging view: selection, history, read state
// and the realtime binding, sequenced so that a switch tears down the old
// binding, binds the new conversation, marks it read and only then loads.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc
	me     string
	role   member.Role
	log    zerolog.Logger

	dir      *directory.Directory
	selector *Selector
	store    *Store
	tracker  *Tracker
	binder   *Binder
	channels *ChannelManager
	notifier Notifier
	listener Listener

	// mu serializes selection transitions.
	mu    sync.Mutex
	inbox Subscription
	wg    sync.WaitGroup
}

// NewSession starts a session bound to ctx and logging through the logger
// attached to it. Shutdown releases it.
func NewSession(ctx context.Context, me string, role member.Role, deps Deps, listener Listener) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ctx:      ctx,
		cancel:   cancel,
		me:       me,
		role:     role,
		log:      logging.FromContext(ctx, "chat").With().Str("member_id", me).Logger(),
		dir:      deps.Directory,
		selector: NewSelector(me),
		store:    NewStore(me, deps.Messages),
		tracker:  NewTracker(deps.ReadState),
		channels: deps.Channels,
		notifier: deps.Notifier,
		listener: listener,
	}
	s.store.ObserveSends(s.pushAppended, listener.MessageRetracted)
	s.binder = NewBinder(deps.Notifier, me, s.onInbound,
		WithDedupeWindow(deps.DedupeWindow), WithBinderLogger(s.log))
	return s
}

func (s *Session) Me() string { return s.me }

func (s *Session) Role() member.Role { return s.role }

func (s *Session) Active() Conversation { return s.selector.Active() }

// WatchInbox subscribes to every direct message addressed to the member so
// unread badges for closed conversations stay current. Failure is reported
// and otherwise ignored.
func (s *Session) WatchInbox() error {
	sub, err := s.notifier.Subscribe(s.ctx, InboxFilter(s.me))
	if err != nil {
		s.log.Warn().Err(err).Msg("inbox subscription failed; unread badges refresh on demand only")
		return newError(ErrSubscription, "watch_inbox", err)
	}
	s.mu.Lock()
	s.inbox = sub
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		filter := InboxFilter(s.me)
		for {
			select {
			case <-s.ctx.Done():
				return
			case m, ok := <-sub.Messages():
				if !ok {
					return
				}
				if filter.Matches(m) {
					s.onInboxMessage(m)
				}
			}
		}
	}()
	return nil
}

// SelectChannel opens a channel. Unknown ids get one directory refresh
// before failing with ErrNotFound.
func (s *Session) SelectChannel(ctx context.Context, id string) error {
	if _, ok := s.dir.Channel(id); !ok {
		if err := s.dir.Refresh(ctx); err != nil {
			s.log.Warn().Err(err).Msg("directory refresh failed")
		}
		if _, ok := s.dir.Channel(id); !ok {
			return newError(ErrNotFound, "select_channel", errors.New("no channel "+id))
		}
	}
	return s.open(ctx, Channel(id), func() bool {
		s.selector.SelectChannel(id)
		return true
	})
}

// SelectDirect opens the direct conversation with peerID.
func (s *Session) SelectDirect(ctx context.Context, peerID string) error {
	if peerID == "" || peerID == s.me {
		return newError(ErrValidation, "select_direct", errors.New("pick another member"))
	}
	if _, ok := s.dir.Member(peerID); !ok {
		if err := s.dir.Refresh(ctx); err != nil {
			s.log.Warn().Err(err).Msg("directory refresh failed")
		}
		if _, ok := s.dir.Member(peerID); !ok {
			return newError(ErrNotFound, "select_direct", errors.New("no member "+peerID))
		}
	}
	return s.open(ctx, Direct(peerID), func() bool {
		return s.selector.SelectDirect(peerID)
	})
}

// Close clears the selection and tears down the binding.
func (s *Session) Close() {
	s.mu.Lock()
	s.selector.Close()
	s.binder.Unbind()
	s.store.Open(nil)
	s.mu.Unlock()
	s.listener.SelectionChanged(nil)
}

func (s *Session) open(ctx context.Context, conv Conversation, selectFn func() bool) error {
	s.mu.Lock()
	if !selectFn() {
		s.mu.Unlock()
		return newError(ErrValidation, "select", errors.New("selection rejected"))
	}
	s.binder.Unbind()
	s.store.Open(conv)
	bindErr := s.binder.Bind(s.ctx, conv)
	s.mu.Unlock()

	s.listener.SelectionChanged(conv)
	if bindErr != nil {
		s.listener.Notice(bindErr)
	}

	if d, ok := conv.(DirectConversation); ok {
		if err := s.markRead(ctx, d.PeerID); err != nil {
			s.listener.Notice(err)
		}
	}

	err := s.store.Load(ctx, conv)
	if errors.Is(err, ErrStale) {
		return nil
	}
	return err
}

// Reload fetches the active conversation's history again.
func (s *Session) Reload(ctx context.Context) error {
	conv := s.selector.Active()
	if conv == nil {
		return nil
	}
	err := s.store.Load(ctx, conv)
	if errors.Is(err, ErrStale) {
		return nil
	}
	return err
}

// Send posts body to the active conversation.
func (s *Session) Send(ctx context.Context, body string) (Message, error) {
	return s.store.Send(ctx, s.selector.Active(), s.me, body)
}

// Search sets the search term and returns the filtered view.
func (s *Session) Search(term string) []Row {
	s.selector.SetSearch(term)
	return s.View()
}

// View renders the held history through the current search term.
func (s *Session) View() []Row {
	var rows []Row
	for m, start := range WithGroupHeaders(s.store.Filtered(s.selector.Transient().SearchTerm)) {
		rows = append(rows, Row{Message: m, StartsGroup: start})
	}
	return rows
}

func (s *Session) UnreadCount(ctx context.Context, peerID string) (int, error) {
	return s.tracker.UnreadCount(ctx, s.me, peerID)
}

func (s *Session) UnreadCounts(ctx context.Context) (map[string]int, error) {
	return s.tracker.UnreadCounts(ctx, s.me)
}

func (s *Session) CreateChannel(ctx context.Context, name, description string) (directory.Channel, error) {
	return s.channels.Create(ctx, name, description, s.role)
}

// DeleteChannel deletes a channel; when it was open the selection closes.
func (s *Session) DeleteChannel(ctx context.Context, id string) error {
	err := s.channels.Delete(ctx, id, s.role)
	if err == nil || errors.Is(err, ErrNotFound) {
		s.ChannelRemoved(id)
	}
	return err
}

// ChannelRemoved reacts to a channel disappearing, locally or elsewhere.
func (s *Session) ChannelRemoved(id string) {
	if c, ok := s.selector.Active().(ChannelConversation); ok && c.ChannelID == id {
		s.Close()
	}
}

// Shutdown drops the binding and inbox watch. The session is unusable after.
func (s *Session) Shutdown() {
	s.mu.Lock()
	s.binder.Unbind()
	inbox := s.inbox
	s.inbox = nil
	s.mu.Unlock()

	s.cancel()
	if inbox != nil {
		inbox.Close()
	}
	s.wg.Wait()
}

func (s *Session) markRead(ctx context.Context, peer string) error {
	n, err := s.tracker.MarkRead(ctx, s.me, peer)
	if err != nil {
		return err
	}
	s.store.MarkReadLocal(peer)
	if n > 0 {
		s.pushUnread(ctx)
	}
	return nil
}

func (s *Session) pushUnread(ctx context.Context) {
	counts, err := s.tracker.UnreadCounts(ctx, s.me)
	if err != nil {
		s.log.Debug().Err(err).Msg("unread counts")
		return
	}
	s.listener.UnreadChanged(counts)
}

// onInbound handles a message pushed under the live binding.
func (s *Session) onInbound(m Message) {
	if !s.store.Append(m) {
		return
	}
	if peer, ok := s.selector.ActivePeer(); ok && m.AuthorID == peer && m.ReceiverID == s.me {
		if err := s.markRead(s.ctx, peer); err != nil {
			s.listener.Notice(err)
		} else {
			m.Read = true
		}
	}
	s.pushAppended(m)
}

// pushAppended hands a newly held message to the listener as a row of the
// current view. Messages hidden by the search term are not pushed.
func (s *Session) pushAppended(m Message) {
	starts, visible := s.store.StartsGroupIn(s.selector.Transient().SearchTerm, m.ID)
	if !visible {
		return
	}
	s.listener.MessageAppended(m, starts)
}

// onInboxMessage refreshes badges for direct messages outside the open
// conversation; the binding handles the open one.
func (s *Session) onInboxMessage(m Message) {
	if peer, ok := s.selector.ActivePeer(); ok && m.AuthorID == peer {
		return
	}
	s.pushUnread(s.ctx)
}
