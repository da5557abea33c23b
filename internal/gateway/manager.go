package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rivaldorose/konsensi-workspace/internal/auth"
	"github.com/rivaldorose/konsensi-workspace/internal/chat"
	"github.com/rivaldorose/konsensi-workspace/internal/database"
	"github.com/rivaldorose/konsensi-workspace/internal/metrics"
	"github.com/rivaldorose/konsensi-workspace/internal/models"
	"github.com/rivaldorose/konsensi-workspace/internal/querycache"
)

const requestTimeout = 10 * time.Second

// ChannelLister loads a user's channel directory.
type ChannelLister interface {
	List(ctx context.Context, principal int64) ([]models.Channel, error)
}

// MessageSender submits composer drafts.
type MessageSender interface {
	Send(ctx context.Context, principal, channelID int64, d chat.Draft) (*models.MessageWithSender, error)
}

// Options holds the Manager's collaborators.
type Options struct {
	Tokens    *auth.TokenService
	Directory ChannelLister
	Members   database.MemberRepository
	Messages  database.MessageRepository
	Bus       chat.Subscriber
	Cache     *querycache.Cache
	Composer  MessageSender
	// Location is used for day grouping in snapshots. Defaults to UTC.
	Location *time.Location
	Now      func() time.Time
	// AllowedOrigins restricts browser upgrades. Empty admits any origin.
	AllowedOrigins []string
}

// Manager manages all active WebSocket connections and event routing.
type Manager struct {
	mu          sync.RWMutex
	connections map[int64]*Connection  // userID → connection
	sessions    map[string]*Connection // sessionID → connection

	tokens    *auth.TokenService
	directory ChannelLister
	members   database.MemberRepository
	messages  database.MessageRepository
	bus       chat.Subscriber
	cache     *querycache.Cache
	composer  MessageSender
	loc       *time.Location
	now       func() time.Time

	allowedOrigins []string
	upgrader       websocket.Upgrader
	closing        atomic.Bool
}

// NewManager creates a new gateway Manager.
func NewManager(opts Options) *Manager {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := &Manager{
		connections: make(map[int64]*Connection),
		sessions:    make(map[string]*Connection),
		tokens:      opts.Tokens,
		directory:   opts.Directory,
		members:     opts.Members,
		messages:    opts.Messages,
		bus:         opts.Bus,
		cache:       opts.Cache,
		composer:    opts.Composer,
		loc:         opts.Location,
		now:         opts.Now,

		allowedOrigins: opts.AllowedOrigins,
	}
	m.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     m.checkOrigin,
	}
	return m
}

// Shutdown stops accepting connections and tells every connected client to
// reconnect, which lands them on another instance.
func (m *Manager) Shutdown() {
	m.closing.Store(true)

	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.sessions))
	for _, c := range m.sessions {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		c.enqueue(GatewayPayload{Op: OpReconnect})
		c.closeFeed()
		c.Close()
	}
	slog.Info("gateway shut down", "sessions", len(conns))
}

// register adds a connection to the manager.
func (m *Manager) register(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Disconnect existing connection for this user.
	if old, ok := m.connections[c.UserID]; ok {
		old.enqueue(GatewayPayload{Op: OpReconnect})
		old.Close()
		delete(m.sessions, old.SessionID)
	} else {
		metrics.GatewayConnections.Inc()
	}

	m.connections[c.UserID] = c
	m.sessions[c.SessionID] = c
}

// unregister removes a connection from the manager and drops its feed.
func (m *Manager) unregister(c *Connection) {
	m.mu.Lock()
	if existing, ok := m.connections[c.UserID]; ok && existing == c {
		delete(m.connections, c.UserID)
		metrics.GatewayConnections.Dec()
	}
	delete(m.sessions, c.SessionID)
	m.mu.Unlock()

	c.closeFeed()
}

// DispatchToUser sends a dispatch event to a specific connected user.
func (m *Manager) DispatchToUser(userID int64, event string, data any) {
	m.mu.RLock()
	c, ok := m.connections[userID]
	m.mu.RUnlock()

	if ok {
		c.SendEvent(event, data)
	}
}

// DispatchToUsers sends a dispatch event to every connected user in userIDs.
func (m *Manager) DispatchToUsers(userIDs []int64, event string, data any) {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(userIDs))
	for _, id := range userIDs {
		if c, ok := m.connections[id]; ok {
			conns = append(conns, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range conns {
		c.SendEvent(event, data)
	}
}

// RevokeChannel deselects channelID on userID's connection, if it is the one
// being viewed, and then sends CHANNEL_MEMBER_REMOVE. The feed's subscription
// is gone before the event goes out.
func (m *Manager) RevokeChannel(userID, channelID int64) {
	m.mu.RLock()
	c, ok := m.connections[userID]
	m.mu.RUnlock()

	if ok {
		c.leaveChannel(channelID)
	}
	m.DispatchToUser(userID, EventChannelMemberRemove, MemberChangeData{ChannelID: channelID, UserID: userID})
}

// handleIdentify processes an IDENTIFY payload from a client.
func (m *Manager) handleIdentify(c *Connection, data json.RawMessage) {
	if c.UserID != 0 {
		return
	}
	if m.closing.Load() {
		c.enqueue(GatewayPayload{Op: OpReconnect})
		c.Close()
		return
	}

	var identify IdentifyData
	if err := json.Unmarshal(data, &identify); err != nil {
		slog.Error("invalid identify data", "error", err)
		c.Close()
		return
	}

	claims, err := m.tokens.ValidateAccessToken(identify.Token)
	if err != nil {
		slog.Warn("invalid token in identify", "error", err)
		c.Close()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	channels, err := m.directory.List(ctx, claims.UserID)
	if err != nil {
		slog.Error("failed to load channel directory", "userID", claims.UserID, "error", err)
		c.Close()
		return
	}

	c.UserID = claims.UserID
	c.SessionID = uuid.NewString()
	c.setFeed(chat.NewFeed(m.messages, m.bus, m.cache, c.sendSnapshot))

	m.register(c)

	c.SendEvent(EventReady, ReadyData{
		SessionID: c.SessionID,
		UserID:    c.UserID,
		Channels:  channels,
	})
}

// handleViewUpdate moves the connection's selection. Channels the user is
// not a member of are treated as no selection.
func (m *Manager) handleViewUpdate(c *Connection, data json.RawMessage) {
	if c.UserID == 0 {
		return
	}

	var update ViewUpdateData
	if err := json.Unmarshal(data, &update); err != nil {
		slog.Warn("invalid view update", "userID", c.UserID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if update.ChannelID != nil {
		ok, err := m.members.IsMember(ctx, *update.ChannelID, c.UserID)
		if err != nil {
			slog.Error("membership check failed", "userID", c.UserID, "channelID", *update.ChannelID, "error", err)
			return
		}
		if !ok {
			slog.Warn("view update for foreign channel", "userID", c.UserID, "channelID", *update.ChannelID)
			update.ChannelID = nil
		}
	}

	feed := c.setView(chat.ViewState{ChannelID: update.ChannelID, InfoOpen: update.InfoOpen})
	if feed == nil {
		return
	}
	if err := feed.Select(ctx, update.ChannelID); err != nil {
		slog.Error("failed to load messages", "userID", c.UserID, "error", err)
	}
}

// handleSendMessage runs the composer without blocking the read loop and
// answers with SEND_RESULT.
func (m *Manager) handleSendMessage(c *Connection, data json.RawMessage) {
	var req SendMessageData
	if err := json.Unmarshal(data, &req); err != nil {
		slog.Warn("invalid send message", "userID", c.UserID, "error", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		msg, err := m.composer.Send(ctx, c.UserID, req.ChannelID, chat.Draft{
			Content:     req.Content,
			Attachments: req.Attachments,
			Mentions:    req.Mentions,
		})

		result := SendResultData{ChannelID: req.ChannelID, Sent: msg, Draft: req}
		switch {
		case err != nil:
			result.Error = err.Error()
			c.keepDraft(req)
		case msg == nil:
			result.Skipped = true
			c.keepDraft(req)
		default:
			result.Draft = SendMessageData{ChannelID: req.ChannelID}
			c.clearDraft(req.ChannelID)
		}
		c.SendEvent(EventSendResult, result)
	}()
}

// sendSnapshot is the feed callback for the selected channel. Membership is
// checked again per delivery, so a removal that has not been revoked yet
// still stops the flow.
func (c *Connection) sendSnapshot(channelID int64, msgs []models.MessageWithSender) {
	m := c.manager

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	ok, err := m.members.IsMember(ctx, channelID, c.UserID)
	cancel()
	if err != nil {
		slog.Error("membership check before snapshot", "userID", c.UserID, "channelID", channelID, "error", err)
		return
	}
	if !ok {
		slog.Warn("dropping snapshot for former member", "userID", c.UserID, "channelID", channelID)
		go c.leaveChannel(channelID)
		return
	}

	c.SendEvent(EventMessagesSnapshot, MessagesSnapshotData{
		ChannelID: channelID,
		Groups:    chat.BuildDayViews(msgs, m.now(), m.loc),
	})
}
