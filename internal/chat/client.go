package chat

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a frame to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Must be less than pongWait.
	maxMessageSize = 8192                // Largest command accepted from the peer.
	sendBuffer     = 256
)

// Command is one client->server frame.
type Command struct {
	Type   string `json:"type"`
	ID     string `json:"id,omitempty"`
	PeerID string `json:"peer_id,omitempty"`
	Body   string `json:"body,omitempty"`
	Term   string `json:"term,omitempty"`
}

// Frame is one server->client frame. Only the fields of its type are set.
type Frame struct {
	Type         string           `json:"type"`
	Conversation *ConversationRef `json:"conversation,omitempty"`
	Messages     []Row            `json:"messages,omitempty"`
	Message      *Message         `json:"message,omitempty"`
	StartsGroup  bool             `json:"first_of_group,omitempty"`
	ID           string           `json:"id,omitempty"`
	Text         string           `json:"text,omitempty"`
	Counts       map[string]int   `json:"counts,omitempty"`
	Kind         string           `json:"kind,omitempty"`
}

// Client is a middleman between the websocket connection and a Session.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	session *Session
	log     zerolog.Logger

	done   chan struct{}
	closed chan struct{}
}

func newClient(conn *websocket.Conn, log zerolog.Logger) *Client {
	return &Client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		log:    log,
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
}

// push queues a frame without blocking; a full queue drops it.
func (c *Client) push(f Frame) {
	payload, err := json.Marshal(f)
	if err != nil {
		c.log.Error().Err(err).Str("type", f.Type).Msg("encode frame")
		return
	}
	select {
	case <-c.done:
	case c.send <- payload:
	default:
		c.log.Warn().Str("type", f.Type).Msg("client queue full; frame dropped")
	}
}

func (c *Client) MessageAppended(m Message, startsGroup bool) {
	c.push(Frame{Type: "message", Message: &m, StartsGroup: startsGroup})
}

func (c *Client) MessageRetracted(m Message, text string) {
	c.push(Frame{Type: "retracted", ID: m.ID, Text: text})
}

func (c *Client) UnreadChanged(counts map[string]int) {
	c.push(Frame{Type: "unread", Counts: counts})
}

func (c *Client) SelectionChanged(conv Conversation) {
	f := Frame{Type: "selection"}
	if conv != nil {
		ref := RefOf(conv)
		f.Conversation = &ref
	}
	c.push(f)
}

func (c *Client) Notice(err error) {
	if err == nil {
		return
	}
	c.push(Frame{Type: "notice", Kind: KindOf(err), Text: err.Error()})
}

func (c *Client) pushHistory() {
	conv := c.session.Active()
	if conv == nil {
		return
	}
	ref := RefOf(conv)
	rows := c.session.View()
	if rows == nil {
		rows = []Row{}
	}
	c.push(Frame{Type: "history", Conversation: &ref, Messages: rows})
}

func (c *Client) pushUnread(ctx context.Context) {
	counts, err := c.session.UnreadCounts(ctx)
	if err != nil {
		c.Notice(err)
		return
	}
	c.UnreadChanged(counts)
}

// dispatch runs one command against the session.
func (c *Client) dispatch(ctx context.Context, cmd Command) {
	switch cmd.Type {
	case "select_channel":
		if err := c.session.SelectChannel(ctx, cmd.ID); err != nil {
			c.Notice(err)
		}
		c.pushHistory()
	case "select_direct":
		if err := c.session.SelectDirect(ctx, cmd.PeerID); err != nil {
			c.Notice(err)
		}
		c.pushHistory()
	case "close":
		c.session.Close()
	case "send":
		// The optimistic row and any retraction reach the browser through the listener.
		if _, err := c.session.Send(ctx, cmd.Body); err != nil {
			c.Notice(err)
		}
	case "search":
		conv := c.session.Active()
		if conv == nil {
			return
		}
		ref := RefOf(conv)
		rows := c.session.Search(cmd.Term)
		if rows == nil {
			rows = []Row{}
		}
		c.push(Frame{Type: "history", Conversation: &ref, Messages: rows})
	case "reload":
		if err := c.session.Reload(ctx); err != nil {
			c.Notice(err)
			return
		}
		c.pushHistory()
	case "unread":
		c.pushUnread(ctx)
	default:
		c.Notice(newError(ErrValidation, "dispatch", errors.New("unknown command "+cmd.Type)))
	}
}

// readPump pumps commands from the websocket connection into the session.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		close(c.done)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read")
			}
			return
		}
		var cmd Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			c.Notice(newError(ErrValidation, "dispatch", err))
			continue
		}
		c.dispatch(ctx, cmd)
	}
}

// writePump pumps frames from the session to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.closed)
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
