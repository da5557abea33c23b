package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/rivaldorose/konsensi-workspace/internal/auth"
	"github.com/rivaldorose/konsensi-workspace/internal/chat"
	"github.com/rivaldorose/konsensi-workspace/internal/models"
	"github.com/rivaldorose/konsensi-workspace/internal/querycache"
	"github.com/rivaldorose/konsensi-workspace/internal/realtime"
	redisclient "github.com/rivaldorose/konsensi-workspace/internal/redis"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

const testSecret = "test-secret"

func newTestBus(t *testing.T) *realtime.RedisBus {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := redisclient.NewClient("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("creating test redis client: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })
	return realtime.NewRedisBus(rdb)
}

type testDeps struct {
	directory *mockDirectory
	members   *mockMemberRepo
	messages  *mockMessageRepo
	composer  *mockSender
	bus       *realtime.RedisBus
}

func newTestManager(t *testing.T) (*Manager, *testDeps) {
	t.Helper()
	d := &testDeps{
		directory: &mockDirectory{},
		members:   &mockMemberRepo{},
		messages:  &mockMessageRepo{},
		composer:  &mockSender{},
		bus:       newTestBus(t),
	}
	m := NewManager(Options{
		Tokens:    auth.NewTokenService(testSecret),
		Directory: d.directory,
		Members:   d.members,
		Messages:  d.messages,
		Bus:       d.bus,
		Cache:     querycache.New(),
		Composer:  d.composer,
		Now:       func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) },
	})
	return m, d
}

// dialConn creates an unidentified Connection backed by a throw-away
// websocket pair. Tests read what the manager queues from the Send channel.
func dialConn(t *testing.T, m *Manager) *Connection {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c := newConnection(ws, m)
	t.Cleanup(func() {
		c.closeFeed()
		c.Close()
		_ = ws.Close()
	})
	return c
}

// fakeConn creates a Connection already registered for userID.
func fakeConn(t *testing.T, m *Manager, userID int64, sessionID string) *Connection {
	t.Helper()
	c := dialConn(t, m)
	c.UserID = userID
	c.SessionID = sessionID

	m.mu.Lock()
	m.connections[userID] = c
	m.sessions[sessionID] = c
	m.mu.Unlock()
	return c
}

// identify runs a real IDENTIFY for userID and discards the READY.
func identify(t *testing.T, m *Manager, userID int64) *Connection {
	t.Helper()
	c := dialConn(t, m)
	token, err := m.tokens.GenerateAccessToken(userID)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	m.handleIdentify(c, mustMarshal(IdentifyData{Token: token}))
	waitEvent(t, c, EventReady)
	return c
}

// drainEvents reads all buffered payloads from a connection's Send channel.
func drainEvents(c *Connection) []GatewayPayload {
	var payloads []GatewayPayload
	for {
		select {
		case raw := <-c.Send:
			var p GatewayPayload
			if err := json.Unmarshal(raw, &p); err == nil {
				payloads = append(payloads, p)
			}
		default:
			return payloads
		}
	}
}

// waitEvent blocks until a dispatch named event arrives, skipping others.
func waitEvent(t *testing.T, c *Connection, event string) GatewayPayload {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case raw := <-c.Send:
			var p GatewayPayload
			if err := json.Unmarshal(raw, &p); err != nil {
				t.Fatalf("decoding payload: %v", err)
			}
			if p.Op == OpDispatch && p.Event != nil && *p.Event == event {
				return p
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", event)
		}
	}
}

func decode[T any](t *testing.T, p GatewayPayload) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(p.Data, &v); err != nil {
		t.Fatalf("decoding %s: %v", string(p.Data), err)
	}
	return v
}

func ptr(id int64) *int64 { return &id }

type mockDirectory struct {
	ListFn func(ctx context.Context, principal int64) ([]models.Channel, error)
}

func (m *mockDirectory) List(ctx context.Context, principal int64) ([]models.Channel, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, principal)
	}
	return []models.Channel{}, nil
}

type mockMemberRepo struct {
	IsMemberFn func(ctx context.Context, channelID, userID int64) (bool, error)
}

func (m *mockMemberRepo) Add(context.Context, int64, int64) error    { return nil }
func (m *mockMemberRepo) Remove(context.Context, int64, int64) error { return nil }
func (m *mockMemberRepo) IsMember(ctx context.Context, channelID, userID int64) (bool, error) {
	if m.IsMemberFn != nil {
		return m.IsMemberFn(ctx, channelID, userID)
	}
	return true, nil
}
func (m *mockMemberRepo) ListByChannelIDs(context.Context, []int64) ([]models.ChannelMember, error) {
	return nil, nil
}

type mockMessageRepo struct {
	mu   sync.Mutex
	rows []models.MessageWithSender
}

func (m *mockMessageRepo) add(msg models.MessageWithSender) {
	m.mu.Lock()
	m.rows = append(m.rows, msg)
	m.mu.Unlock()
}

func (m *mockMessageRepo) Create(context.Context, *models.Message) error { return nil }
func (m *mockMessageRepo) GetByID(context.Context, int64) (*models.MessageWithSender, error) {
	return nil, nil
}
func (m *mockMessageRepo) ListByChannel(_ context.Context, channelID int64) ([]models.MessageWithSender, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.MessageWithSender{}
	for _, r := range m.rows {
		if r.ChannelID == channelID {
			out = append(out, r)
		}
	}
	return out, nil
}
func (m *mockMessageRepo) UpdateContent(context.Context, *models.Message) error { return nil }
func (m *mockMessageRepo) SetReaction(context.Context, int64, int64, string, bool) (bool, error) {
	return false, nil
}

type mockSender struct {
	SendFn func(ctx context.Context, principal, channelID int64, d chat.Draft) (*models.MessageWithSender, error)
}

func (m *mockSender) Send(ctx context.Context, principal, channelID int64, d chat.Draft) (*models.MessageWithSender, error) {
	if m.SendFn != nil {
		return m.SendFn(ctx, principal, channelID, d)
	}
	return nil, nil
}

// ---------------------------------------------------------------------------
// Dispatch Tests
// ---------------------------------------------------------------------------

func TestDispatchToUser_OnlyTarget(t *testing.T) {
	m, _ := newTestManager(t)
	c1 := fakeConn(t, m, 100, "s1")
	c2 := fakeConn(t, m, 200, "s2")

	m.DispatchToUser(100, EventChannelCreate, map[string]string{"name": "general"})

	if p := drainEvents(c1); len(p) != 1 || *p[0].Event != EventChannelCreate {
		t.Fatalf("user 100 payloads = %+v, want one CHANNEL_CREATE", p)
	}
	if p := drainEvents(c2); len(p) != 0 {
		t.Errorf("user 200 received %d events, want 0", len(p))
	}
}

func TestDispatchToUser_OfflineIsNoop(t *testing.T) {
	m, _ := newTestManager(t)
	// No connection registered; must not panic.
	m.DispatchToUser(999, EventChannelCreate, nil)
}

func TestDispatchToUsers_SkipsOffline(t *testing.T) {
	m, _ := newTestManager(t)
	c1 := fakeConn(t, m, 100, "s1")
	c2 := fakeConn(t, m, 200, "s2")
	c3 := fakeConn(t, m, 300, "s3")

	m.DispatchToUsers([]int64{100, 300, 400}, EventChannelMemberAdd, map[string]string{"channel_id": "1"})

	if n := len(drainEvents(c1)); n != 1 {
		t.Errorf("user 100 received %d events, want 1", n)
	}
	if n := len(drainEvents(c2)); n != 0 {
		t.Errorf("user 200 received %d events, want 0", n)
	}
	if n := len(drainEvents(c3)); n != 1 {
		t.Errorf("user 300 received %d events, want 1", n)
	}
}

func TestSendEvent_SequenceIncrements(t *testing.T) {
	m, _ := newTestManager(t)
	c := fakeConn(t, m, 100, "s1")

	c.SendEvent(EventChannelCreate, nil)
	c.SendEvent(EventChannelCreate, nil)

	p := drainEvents(c)
	if len(p) != 2 {
		t.Fatalf("got %d payloads, want 2", len(p))
	}
	if *p[0].Sequence != 1 || *p[1].Sequence != 2 {
		t.Errorf("sequences = %d, %d; want 1, 2", *p[0].Sequence, *p[1].Sequence)
	}
}

// ---------------------------------------------------------------------------
// Registration Tests
// ---------------------------------------------------------------------------

func TestRegister_ReplacesOldConnection(t *testing.T) {
	m, _ := newTestManager(t)
	old := fakeConn(t, m, 100, "old")

	next := dialConn(t, m)
	next.UserID = 100
	next.SessionID = "new"
	m.register(next)

	p := drainEvents(old)
	if len(p) != 1 || p[0].Op != OpReconnect {
		t.Fatalf("old connection payloads = %+v, want RECONNECT", p)
	}
	select {
	case <-old.done:
	default:
		t.Error("old connection should be closed")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.connections[100] != next {
		t.Error("new connection should be registered")
	}
	if _, ok := m.sessions["old"]; ok {
		t.Error("old session should be removed")
	}
}

func TestUnregister_StaleConnectionKeepsCurrent(t *testing.T) {
	m, _ := newTestManager(t)
	current := fakeConn(t, m, 100, "current")

	stale := dialConn(t, m)
	stale.UserID = 100
	stale.SessionID = "stale"
	m.unregister(stale)

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.connections[100] != current {
		t.Error("unregistering a stale connection must not drop the current one")
	}
}

// ---------------------------------------------------------------------------
// Identify Tests
// ---------------------------------------------------------------------------

func TestIdentify_SendsReadyWithDirectory(t *testing.T) {
	m, d := newTestManager(t)
	d.directory.ListFn = func(_ context.Context, principal int64) ([]models.Channel, error) {
		if principal != 42 {
			t.Errorf("directory listed for %d, want 42", principal)
		}
		return []models.Channel{{ID: 1, Name: "general", Kind: models.ChannelKindGroup, Members: models.IDs{42}}}, nil
	}

	c := dialConn(t, m)
	token, _ := m.tokens.GenerateAccessToken(42)
	m.handleIdentify(c, mustMarshal(IdentifyData{Token: token}))

	ready := decode[ReadyData](t, waitEvent(t, c, EventReady))
	if ready.UserID != 42 {
		t.Errorf("UserID = %d, want 42", ready.UserID)
	}
	if ready.SessionID == "" {
		t.Error("SessionID should be set")
	}
	if len(ready.Channels) != 1 || ready.Channels[0].Name != "general" {
		t.Errorf("Channels = %+v", ready.Channels)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.connections[42] != c {
		t.Error("connection should be registered after identify")
	}
}

func TestIdentify_InvalidTokenCloses(t *testing.T) {
	m, _ := newTestManager(t)
	c := dialConn(t, m)

	m.handleIdentify(c, mustMarshal(IdentifyData{Token: "garbage"}))

	select {
	case <-c.done:
	default:
		t.Fatal("connection should be closed")
	}
	if c.UserID != 0 {
		t.Errorf("UserID = %d, want 0", c.UserID)
	}
}

func TestIdentify_DirectoryFailureCloses(t *testing.T) {
	m, d := newTestManager(t)
	d.directory.ListFn = func(context.Context, int64) ([]models.Channel, error) {
		return nil, errors.New("db down")
	}
	c := dialConn(t, m)
	token, _ := m.tokens.GenerateAccessToken(42)

	m.handleIdentify(c, mustMarshal(IdentifyData{Token: token}))

	select {
	case <-c.done:
	default:
		t.Fatal("connection should be closed")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.connections[42]; ok {
		t.Error("connection should not be registered")
	}
}

// ---------------------------------------------------------------------------
// View Tests
// ---------------------------------------------------------------------------

func TestViewUpdate_DeliversGroupedSnapshot(t *testing.T) {
	m, d := newTestManager(t)
	d.messages.add(models.MessageWithSender{
		Message: models.Message{ID: 1, ChannelID: 5, Content: "morning", CreatedAt: time.Date(2024, 3, 9, 9, 0, 0, 0, time.UTC)},
		Sender:  models.Profile{ID: 42, DisplayName: "Ada Lovelace"},
	})
	d.messages.add(models.MessageWithSender{
		Message: models.Message{ID: 2, ChannelID: 5, Content: "noon", CreatedAt: time.Date(2024, 3, 10, 11, 0, 0, 0, time.UTC)},
		Sender:  models.Profile{ID: 42, DisplayName: "Ada Lovelace"},
	})
	c := identify(t, m, 42)

	m.handleViewUpdate(c, json.RawMessage(`{"channel_id":"5","info_open":true}`))

	snap := decode[MessagesSnapshotData](t, waitEvent(t, c, EventMessagesSnapshot))
	if snap.ChannelID != 5 {
		t.Errorf("ChannelID = %d, want 5", snap.ChannelID)
	}
	if len(snap.Groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(snap.Groups))
	}
	if snap.Groups[0].Label != "Yesterday" || snap.Groups[1].Label != "Today" {
		t.Errorf("labels = %q, %q", snap.Groups[0].Label, snap.Groups[1].Label)
	}
	if got := snap.Groups[1].Messages[0].Sender.Initials; got != "AL" {
		t.Errorf("Initials = %q, want AL", got)
	}

	v := c.View()
	if v.ChannelID == nil || *v.ChannelID != 5 || !v.InfoOpen {
		t.Errorf("view = %+v", v)
	}
}

func TestViewUpdate_NotificationPushesFreshSnapshot(t *testing.T) {
	m, d := newTestManager(t)
	c := identify(t, m, 42)

	m.handleViewUpdate(c, json.RawMessage(`{"channel_id":"5"}`))
	first := decode[MessagesSnapshotData](t, waitEvent(t, c, EventMessagesSnapshot))
	if len(first.Groups) != 0 {
		t.Fatalf("expected empty channel, got %+v", first.Groups)
	}

	d.messages.add(models.MessageWithSender{Message: models.Message{ID: 9, ChannelID: 5, Content: "hi", CreatedAt: time.Date(2024, 3, 10, 11, 0, 0, 0, time.UTC)}})
	err := d.bus.Publish(context.Background(), realtime.Notification{
		Table: realtime.TableMessages, Event: realtime.EventInsert, Column: "channel_id", Value: "5",
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	next := decode[MessagesSnapshotData](t, waitEvent(t, c, EventMessagesSnapshot))
	if len(next.Groups) != 1 || next.Groups[0].Messages[0].Content != "hi" {
		t.Fatalf("snapshot after insert = %+v", next.Groups)
	}
}

func TestViewUpdate_ForeignChannelSelectsNothing(t *testing.T) {
	m, d := newTestManager(t)
	d.members.IsMemberFn = func(context.Context, int64, int64) (bool, error) { return false, nil }
	c := identify(t, m, 42)

	m.handleViewUpdate(c, json.RawMessage(`{"channel_id":"5"}`))

	if v := c.View(); v.ChannelID != nil {
		t.Errorf("ChannelID = %d, want nil", *v.ChannelID)
	}
	if p := drainEvents(c); len(p) != 0 {
		t.Errorf("expected no snapshot, got %d payloads", len(p))
	}
}

func TestViewUpdate_NullClearsSelection(t *testing.T) {
	m, _ := newTestManager(t)
	c := identify(t, m, 42)

	m.handleViewUpdate(c, json.RawMessage(`{"channel_id":"5"}`))
	waitEvent(t, c, EventMessagesSnapshot)

	m.handleViewUpdate(c, json.RawMessage(`{"channel_id":null}`))
	if v := c.View(); v.ChannelID != nil {
		t.Errorf("ChannelID should be cleared")
	}
}

func TestViewUpdate_BeforeIdentifyIgnored(t *testing.T) {
	m, _ := newTestManager(t)
	c := dialConn(t, m)

	m.handleViewUpdate(c, json.RawMessage(`{"channel_id":"5"}`))

	if v := c.View(); v.ChannelID != nil {
		t.Error("unidentified connection must not select a channel")
	}
}

func TestUnregister_ClosesFeed(t *testing.T) {
	m, _ := newTestManager(t)
	c := identify(t, m, 42)
	c.stateMu.Lock()
	feed := c.feed
	c.stateMu.Unlock()

	m.unregister(c)

	if err := feed.Select(context.Background(), ptr(5)); !errors.Is(err, chat.ErrFeedClosed) {
		t.Errorf("Select after unregister = %v, want ErrFeedClosed", err)
	}
}

// ---------------------------------------------------------------------------
// Revocation Tests
// ---------------------------------------------------------------------------

// publishInsert stores msg and announces it on its channel.
func publishInsert(t *testing.T, d *testDeps, msg models.MessageWithSender) {
	t.Helper()
	d.messages.add(msg)
	err := d.bus.Publish(context.Background(), realtime.Notification{
		Table: realtime.TableMessages, Event: realtime.EventInsert,
		Column: "channel_id", Value: strconv.FormatInt(msg.ChannelID, 10),
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

// noSnapshotWithin fails if a MESSAGES_SNAPSHOT arrives within d.
func noSnapshotWithin(t *testing.T, c *Connection, d time.Duration) {
	t.Helper()
	deadline := time.After(d)
	for {
		select {
		case raw := <-c.Send:
			var p GatewayPayload
			if err := json.Unmarshal(raw, &p); err == nil && p.Event != nil && *p.Event == EventMessagesSnapshot {
				t.Fatalf("unexpected snapshot after losing membership: %s", p.Data)
			}
		case <-deadline:
			return
		}
	}
}

func TestRevokeChannel_StopsSnapshotsForRemovedMember(t *testing.T) {
	m, d := newTestManager(t)
	var member atomic.Bool
	member.Store(true)
	d.members.IsMemberFn = func(context.Context, int64, int64) (bool, error) { return member.Load(), nil }
	c := identify(t, m, 42)

	m.handleViewUpdate(c, json.RawMessage(`{"channel_id":"7"}`))
	waitEvent(t, c, EventMessagesSnapshot)
	c.keepDraft(SendMessageData{ChannelID: 7, Content: "unsent"})

	member.Store(false)
	m.RevokeChannel(42, 7)

	removed := decode[MemberChangeData](t, waitEvent(t, c, EventChannelMemberRemove))
	if removed.ChannelID != 7 || removed.UserID != 42 {
		t.Errorf("CHANNEL_MEMBER_REMOVE = %+v", removed)
	}
	if v := c.View(); v.ChannelID != nil {
		t.Errorf("view still on channel %d", *v.ChannelID)
	}
	if _, ok := c.Draft(7); ok {
		t.Error("draft for the revoked channel should be dropped")
	}

	publishInsert(t, d, models.MessageWithSender{Message: models.Message{ID: 9, ChannelID: 7, Content: "after removal", CreatedAt: time.Date(2024, 3, 10, 11, 0, 0, 0, time.UTC)}})
	noSnapshotWithin(t, c, 300*time.Millisecond)
}

func TestRevokeChannel_OtherChannelKeepsSelection(t *testing.T) {
	m, _ := newTestManager(t)
	c := identify(t, m, 42)

	m.handleViewUpdate(c, json.RawMessage(`{"channel_id":"5"}`))
	waitEvent(t, c, EventMessagesSnapshot)

	m.RevokeChannel(42, 7)

	waitEvent(t, c, EventChannelMemberRemove)
	if v := c.View(); v.ChannelID == nil || *v.ChannelID != 5 {
		t.Errorf("view = %+v, want channel 5 still selected", v)
	}
}

func TestSnapshot_DroppedOnceMembershipIsGone(t *testing.T) {
	m, d := newTestManager(t)
	var member atomic.Bool
	member.Store(true)
	d.members.IsMemberFn = func(context.Context, int64, int64) (bool, error) { return member.Load(), nil }
	c := identify(t, m, 42)

	m.handleViewUpdate(c, json.RawMessage(`{"channel_id":"7"}`))
	waitEvent(t, c, EventMessagesSnapshot)

	member.Store(false)
	publishInsert(t, d, models.MessageWithSender{Message: models.Message{ID: 10, ChannelID: 7, Content: "not for you", CreatedAt: time.Date(2024, 3, 10, 11, 0, 0, 0, time.UTC)}})
	noSnapshotWithin(t, c, 300*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for c.View().ChannelID != nil {
		if time.Now().After(deadline) {
			t.Fatal("former member's view was never cleared")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ---------------------------------------------------------------------------
// Send Tests
// ---------------------------------------------------------------------------

func TestSendMessage_SuccessClearsDraft(t *testing.T) {
	m, d := newTestManager(t)
	d.composer.SendFn = func(_ context.Context, principal, channelID int64, draft chat.Draft) (*models.MessageWithSender, error) {
		if principal != 42 || channelID != 5 || draft.Content != "hello" {
			t.Errorf("Send(%d, %d, %+v)", principal, channelID, draft)
		}
		return &models.MessageWithSender{Message: models.Message{ID: 77, ChannelID: 5, Content: "hello"}}, nil
	}
	c := identify(t, m, 42)
	c.keepDraft(SendMessageData{ChannelID: 5, Content: "earlier"})

	m.handleSendMessage(c, json.RawMessage(`{"channel_id":"5","content":"hello"}`))

	res := decode[SendResultData](t, waitEvent(t, c, EventSendResult))
	if res.Sent == nil || res.Sent.ID != 77 {
		t.Fatalf("Sent = %+v", res.Sent)
	}
	if res.Error != "" || res.Draft.Content != "" {
		t.Errorf("result = %+v, want cleared draft and no error", res)
	}
	if _, ok := c.Draft(5); ok {
		t.Error("draft buffer should be cleared")
	}
}

func TestSendMessage_FailureKeepsDraft(t *testing.T) {
	m, d := newTestManager(t)
	d.composer.SendFn = func(context.Context, int64, int64, chat.Draft) (*models.MessageWithSender, error) {
		return nil, errors.New("channel not found")
	}
	c := identify(t, m, 42)

	m.handleSendMessage(c, json.RawMessage(`{"channel_id":"5","content":"hello"}`))

	res := decode[SendResultData](t, waitEvent(t, c, EventSendResult))
	if res.Sent != nil {
		t.Errorf("Sent = %+v, want nil", res.Sent)
	}
	if res.Error != "channel not found" {
		t.Errorf("Error = %q", res.Error)
	}
	if res.Draft.Content != "hello" {
		t.Errorf("Draft = %+v, want preserved", res.Draft)
	}
	if d, ok := c.Draft(5); !ok || d.Content != "hello" {
		t.Errorf("draft buffer = %+v, %v", d, ok)
	}
}

func TestSendMessage_SkippedReportsSkip(t *testing.T) {
	m, _ := newTestManager(t)
	c := identify(t, m, 42)

	m.handleSendMessage(c, json.RawMessage(`{"channel_id":"5","content":"   "}`))

	res := decode[SendResultData](t, waitEvent(t, c, EventSendResult))
	if !res.Skipped || res.Sent != nil || res.Error != "" {
		t.Errorf("result = %+v, want skipped", res)
	}
}

func TestSendMessage_UnidentifiedUsesZeroPrincipal(t *testing.T) {
	m, d := newTestManager(t)
	d.composer.SendFn = func(_ context.Context, principal, _ int64, _ chat.Draft) (*models.MessageWithSender, error) {
		if principal != 0 {
			t.Errorf("principal = %d, want 0", principal)
		}
		return nil, chat.ErrNotAuthenticated
	}
	c := dialConn(t, m)

	m.handleSendMessage(c, json.RawMessage(`{"channel_id":"5","content":"hi"}`))

	res := decode[SendResultData](t, waitEvent(t, c, EventSendResult))
	if res.Error != chat.ErrNotAuthenticated.Error() {
		t.Errorf("Error = %q", res.Error)
	}
}

// ---------------------------------------------------------------------------
// Protocol Tests
// ---------------------------------------------------------------------------

func TestHandleMessage_HeartbeatAck(t *testing.T) {
	m, _ := newTestManager(t)
	c := dialConn(t, m)
	before := c.lastHeartbeat.Load()
	time.Sleep(2 * time.Millisecond)

	c.handleMessage([]byte(`{"op":1}`))

	p := drainEvents(c)
	if len(p) != 1 || p[0].Op != OpHeartbeatAck {
		t.Fatalf("payloads = %+v, want HEARTBEAT_ACK", p)
	}
	if c.lastHeartbeat.Load() <= before {
		t.Error("heartbeat timestamp should advance")
	}
}

func TestHandleMessage_InvalidJSONIgnored(t *testing.T) {
	m, _ := newTestManager(t)
	c := dialConn(t, m)

	c.handleMessage([]byte(`not json`))

	if p := drainEvents(c); len(p) != 0 {
		t.Errorf("payloads = %+v, want none", p)
	}
}
