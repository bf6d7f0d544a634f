package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"teamhq/internal/logging"
	"teamhq/internal/member"
	myMiddleware "teamhq/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev mode)
	},
}

// Presence records whether a member is connected.
type Presence interface {
	SetStatus(ctx context.Context, id string, status member.Status) error
}

type Handler struct {
	deps     Deps
	tracker  *Tracker
	presence Presence
	log      zerolog.Logger

	mu      sync.Mutex
	clients map[*Client]bool
}

func NewHandler(deps Deps, presence Presence) *Handler {
	return &Handler{
		deps:     deps,
		tracker:  NewTracker(deps.ReadState),
		presence: presence,
		log:      logging.Component("chat"),
		clients:  make(map[*Client]bool),
	}
}

func identity(r *http.Request) (string, member.Role, bool) {
	id, role, ok := myMiddleware.Identity(r.Context())
	return id, member.Role(role), ok
}

// ServeWs upgrades the request and runs one Session for the connection.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	me, role, ok := identity(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade")
		return
	}

	// The request context ends when ServeWs returns; the session outlives it.
	log := logging.Component("chat").With().Str("remote_addr", r.RemoteAddr).Logger()
	ctx := logging.WithContext(context.WithoutCancel(r.Context()), log)
	client := newClient(conn, log.With().Str("member_id", me).Logger())
	client.session = NewSession(ctx, me, role, h.deps, client)

	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
	h.setPresence(ctx, me, member.StatusOnline)

	go client.writePump()

	if err := client.session.WatchInbox(); err != nil {
		client.Notice(err)
	}
	client.pushUnread(ctx)

	go func() {
		client.readPump(ctx)

		h.mu.Lock()
		delete(h.clients, client)
		h.mu.Unlock()

		client.session.Shutdown()
		h.setPresence(ctx, me, member.StatusOffline)
		<-client.closed
		client.log.Debug().Msg("websocket closed")
	}()
}

func (h *Handler) setPresence(ctx context.Context, id string, status member.Status) {
	if h.deps.Directory != nil {
		h.deps.Directory.SetStatus(id, status)
	}
	if h.presence == nil {
		return
	}
	if err := h.presence.SetStatus(ctx, id, status); err != nil {
		h.log.Warn().Err(err).Str("member_id", id).Str("status", string(status)).Msg("presence update")
	}
}

// ChannelRemoved closes the selection of every connected session that has
// the channel open.
func (h *Handler) ChannelRemoved(id string) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.session.ChannelRemoved(id)
	}
}

func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Directory.Channels())
}

type createChannelRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	_, role, ok := identity(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req createChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c, err := h.deps.Channels.Create(r.Context(), req.Name, req.Description, role)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	_, role, ok := identity(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id := chi.URLParam(r, "id")
	err := h.deps.Channels.Delete(r.Context(), id, role)
	if err == nil || errors.Is(err, ErrNotFound) {
		// Sessions may still show a channel that is already gone.
		h.ChannelRemoved(id)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetMessages returns the full history of ?channel=<id> or ?peer=<id>.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	me, _, ok := identity(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var conv Conversation
	q := r.URL.Query()
	switch channel, peer := q.Get("channel"), q.Get("peer"); {
	case channel != "" && peer == "":
		conv = Channel(channel)
	case peer != "" && channel == "" && peer != me:
		conv = Direct(peer)
	default:
		http.Error(w, "exactly one of channel or peer (not yourself) is required", http.StatusBadRequest)
		return
	}

	msgs, err := h.deps.Messages.QueryMessages(r.Context(), FilterFor(me, conv))
	if err != nil {
		if !errors.Is(err, ErrValidation) {
			err = newError(ErrLoad, "get_messages", err)
		}
		h.writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *Handler) GetUnread(w http.ResponseWriter, r *http.Request) {
	me, _, ok := identity(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	counts, err := h.tracker.UnreadCounts(r.Context(), me)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"kind": KindOf(err), "error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
