package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rivaldorose/konsensi-workspace/internal/chat"
)

const (
	heartbeatInterval = 41250 * time.Millisecond
	// heartbeatGrace is how late a client heartbeat may be before the
	// connection is dropped.
	heartbeatGrace = 10 * time.Second
	writeWait      = 10 * time.Second
	readWait       = 60 * time.Second
	maxFrameBytes  = 16 << 10
	outboxSize     = 256
)

// Connection is one gateway client. Outbound payloads are queued on Send and
// written by writePump; everything else the client does arrives through
// readPump and handleMessage.
type Connection struct {
	UserID    int64
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte

	manager  *Manager
	sequence atomic.Int64

	closeOnce sync.Once
	done      chan struct{}

	lastHeartbeat atomic.Int64 // unix millis

	// stateMu guards the client's view of the workspace.
	stateMu sync.Mutex
	view    chat.ViewState
	feed    *chat.Feed
	drafts  map[int64]SendMessageData
}

func newConnection(ws *websocket.Conn, m *Manager) *Connection {
	c := &Connection{
		Conn:    ws,
		Send:    make(chan []byte, outboxSize),
		manager: m,
		done:    make(chan struct{}),
		drafts:  make(map[int64]SendMessageData),
	}
	c.touch()
	return c
}

func (c *Connection) touch() { c.lastHeartbeat.Store(time.Now().UnixMilli()) }

func (c *Connection) heartbeatOverdue() bool {
	last := time.UnixMilli(c.lastHeartbeat.Load())
	return time.Since(last) > heartbeatInterval+heartbeatGrace
}

// enqueue encodes p onto the outbox. A full outbox drops the payload; the
// client recovers through the next snapshot.
func (c *Connection) enqueue(p GatewayPayload) {
	raw, err := json.Marshal(p)
	if err != nil {
		slog.Error("encoding gateway payload", "op", p.Op, "userID", c.UserID, "error", err)
		return
	}
	select {
	case c.Send <- raw:
	default:
		slog.Warn("gateway outbox full", "op", p.Op, "userID", c.UserID)
	}
}

// SendEvent queues a DISPATCH named event, stamped with the next sequence.
func (c *Connection) SendEvent(event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		slog.Error("encoding dispatch", "event", event, "error", err)
		return
	}
	seq := c.sequence.Add(1)
	c.enqueue(GatewayPayload{Op: OpDispatch, Data: raw, Sequence: &seq, Event: &event})
}

// View returns what the client is currently looking at.
func (c *Connection) View() chat.ViewState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.view
}

// Draft returns the unsent draft kept for channelID, if any.
func (c *Connection) Draft(channelID int64) (SendMessageData, bool) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	d, ok := c.drafts[channelID]
	return d, ok
}

func (c *Connection) setFeed(f *chat.Feed) {
	c.stateMu.Lock()
	c.feed = f
	c.stateMu.Unlock()
}

// setView stores v and returns the feed to select on, nil once closed.
func (c *Connection) setView(v chat.ViewState) *chat.Feed {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.view = v
	return c.feed
}

func (c *Connection) keepDraft(d SendMessageData) {
	c.stateMu.Lock()
	c.drafts[d.ChannelID] = d
	c.stateMu.Unlock()
}

func (c *Connection) clearDraft(channelID int64) {
	c.stateMu.Lock()
	delete(c.drafts, channelID)
	c.stateMu.Unlock()
}

// leaveChannel deselects channelID if the client is viewing it and forgets
// the draft kept for it.
func (c *Connection) leaveChannel(channelID int64) {
	c.stateMu.Lock()
	delete(c.drafts, channelID)
	viewing := c.view.ChannelID != nil && *c.view.ChannelID == channelID
	if viewing {
		c.view.ChannelID = nil
	}
	f := c.feed
	c.stateMu.Unlock()

	if !viewing || f == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := f.Select(ctx, nil); err != nil && !errors.Is(err, chat.ErrFeedClosed) {
		slog.Error("deselecting revoked channel", "userID", c.UserID, "channelID", channelID, "error", err)
	}
}

// closeFeed drops the view and releases the feed's subscription.
func (c *Connection) closeFeed() {
	c.stateMu.Lock()
	f := c.feed
	c.feed, c.view = nil, chat.ViewState{}
	c.stateMu.Unlock()

	if f != nil {
		f.Close()
	}
}

// Close asks writePump to flush what is queued and hang up.
func (c *Connection) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Connection) readPump() {
	defer func() {
		c.manager.unregister(c)
		c.Close()
	}()

	c.Conn.SetReadLimit(maxFrameBytes)
	extend := func() { _ = c.Conn.SetReadDeadline(time.Now().Add(readWait)) }
	extend()
	c.Conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		_, frame, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("gateway read", "userID", c.UserID, "error", err)
			}
			return
		}
		extend()
		c.handleMessage(frame)
	}
}

// writePump owns every write to the socket. It closes the socket when it
// returns, which also ends readPump.
func (c *Connection) writePump() {
	ping := time.NewTicker(heartbeatInterval)
	defer func() {
		ping.Stop()
		_ = c.Conn.Close()
		c.Close()
	}()

	for {
		select {
		case frame := <-c.Send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ping.C:
			if c.heartbeatOverdue() {
				slog.Warn("gateway heartbeat overdue", "userID", c.UserID)
				return
			}
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.flush()
			return
		}
	}
}

// flush writes whatever is still queued, then a going-away close frame.
func (c *Connection) flush() {
	for {
		select {
		case frame := <-c.Send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
			_ = c.Conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}
	}
}

func (c *Connection) write(kind int, data []byte) error {
	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteMessage(kind, data)
}

func (c *Connection) handleMessage(data []byte) {
	var payload GatewayPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		slog.Warn("undecodable gateway frame", "userID", c.UserID, "error", err)
		return
	}

	switch payload.Op {
	case OpHeartbeat:
		c.touch()
		c.enqueue(GatewayPayload{Op: OpHeartbeatAck})
	case OpIdentify:
		c.manager.handleIdentify(c, payload.Data)
	case OpViewUpdate:
		c.manager.handleViewUpdate(c, payload.Data)
	case OpSendMessage:
		c.manager.handleSendMessage(c, payload.Data)
	default:
		slog.Debug("ignoring gateway op", "op", payload.Op, "userID", c.UserID)
	}
}
