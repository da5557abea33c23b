package api

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/rivaldorose/konsensi-workspace/internal/auth"
	"github.com/rivaldorose/konsensi-workspace/internal/database"
	"github.com/rivaldorose/konsensi-workspace/internal/gateway"
	"github.com/rivaldorose/konsensi-workspace/internal/models"
	"github.com/rivaldorose/konsensi-workspace/internal/realtime"
	redisclient "github.com/rivaldorose/konsensi-workspace/internal/redis"
	"github.com/rivaldorose/konsensi-workspace/internal/snowflake"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func newTestContext(method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewRequestValidator()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

// newMultipartContext builds a request with one file part under field.
func newMultipartContext(t *testing.T, method, path, field, filename, contentType string, content []byte) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatalf("creating part: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("writing part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("closing writer: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func setParams(c echo.Context, kv ...string) {
	var names, values []string
	for i := 0; i+1 < len(kv); i += 2 {
		names = append(names, kv[i])
		values = append(values, kv[i+1])
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)
}

func setAuthUser(c echo.Context, userID int64) {
	auth.SetUserID(c, userID)
}

func testSnowflake() *snowflake.Generator {
	sf, _ := snowflake.NewGenerator(1)
	return sf
}

func newTestRedis(t *testing.T) *redisclient.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := redisclient.NewClient("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("creating test redis client: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func strPtr(s string) *string { return &s }

// ---------------------------------------------------------------------------
// Mock gateway dispatcher
// ---------------------------------------------------------------------------

type dispatchedEvent struct {
	UserIDs []int64
	Event   string
	Data    any
}

type mockGateway struct {
	mu      sync.Mutex
	events  []dispatchedEvent
	revoked [][2]int64 // {userID, channelID}
}

func (m *mockGateway) DispatchToUser(userID int64, event string, data any) {
	m.DispatchToUsers([]int64{userID}, event, data)
}

func (m *mockGateway) DispatchToUsers(userIDs []int64, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, dispatchedEvent{UserIDs: userIDs, Event: event, Data: data})
}

func (m *mockGateway) RevokeChannel(userID, channelID int64) {
	m.mu.Lock()
	m.revoked = append(m.revoked, [2]int64{userID, channelID})
	m.mu.Unlock()
	m.DispatchToUser(userID, gateway.EventChannelMemberRemove, gateway.MemberChangeData{ChannelID: channelID, UserID: userID})
}

func (m *mockGateway) revocations() [][2]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][2]int64(nil), m.revoked...)
}

func (m *mockGateway) dispatched() []dispatchedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]dispatchedEvent(nil), m.events...)
}

// ---------------------------------------------------------------------------
// Mock publisher
// ---------------------------------------------------------------------------

type mockPublisher struct {
	mu        sync.Mutex
	published []realtime.Notification
	err       error
}

func (m *mockPublisher) Publish(_ context.Context, n realtime.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, n)
	return m.err
}

func (m *mockPublisher) notifications() []realtime.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]realtime.Notification(nil), m.published...)
}

// ---------------------------------------------------------------------------
// Mock storage
// ---------------------------------------------------------------------------

type mockStorage struct {
	mu       sync.Mutex
	uploaded map[string][]byte
	deleted  []string
	UploadFn func(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
}

func newMockStorage() *mockStorage {
	return &mockStorage{uploaded: make(map[string][]byte)}
}

func (m *mockStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if m.UploadFn != nil {
		return m.UploadFn(ctx, key, reader, size, contentType)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.uploaded[key] = data
	m.mu.Unlock()
	return nil
}

func (m *mockStorage) GetURL(key string) string {
	return "http://files.test/workspace/" + key
}

func (m *mockStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	m.deleted = append(m.deleted, key)
	m.mu.Unlock()
	return nil
}

// ---------------------------------------------------------------------------
// Mock repositories
// ---------------------------------------------------------------------------

// mockUserRepo implements database.UserRepository.
type mockUserRepo struct {
	CreateFn      func(ctx context.Context, user *models.User) error
	GetByIDFn     func(ctx context.Context, id int64) (*models.User, error)
	GetByEmailFn  func(ctx context.Context, email string) (*models.User, error)
	GetProfilesFn func(ctx context.Context, ids []int64) ([]models.Profile, error)
	UpdateFn      func(ctx context.Context, user *models.User) error
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFn != nil {
		return m.GetByEmailFn(ctx, email)
	}
	return nil, nil
}

// GetProfiles defaults to returning a profile for every id.
func (m *mockUserRepo) GetProfiles(ctx context.Context, ids []int64) ([]models.Profile, error) {
	if m.GetProfilesFn != nil {
		return m.GetProfilesFn(ctx, ids)
	}
	out := make([]models.Profile, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Profile{ID: id, DisplayName: "user"})
	}
	return out, nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, user)
	}
	return nil
}

// mockChannelRepo implements database.ChannelRepository.
type mockChannelRepo struct {
	CreateFn      func(ctx context.Context, ch *models.Channel) error
	GetByIDFn     func(ctx context.Context, id int64) (*models.Channel, error)
	ListVisibleFn func(ctx context.Context, userID int64) ([]models.Channel, error)
	FindDirectFn  func(ctx context.Context, a, b int64) (*models.Channel, error)
	TouchFn       func(ctx context.Context, id int64) error
}

func (m *mockChannelRepo) Create(ctx context.Context, ch *models.Channel) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, ch)
	}
	return nil
}

func (m *mockChannelRepo) GetByID(ctx context.Context, id int64) (*models.Channel, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockChannelRepo) ListVisible(ctx context.Context, userID int64) ([]models.Channel, error) {
	if m.ListVisibleFn != nil {
		return m.ListVisibleFn(ctx, userID)
	}
	return []models.Channel{}, nil
}

func (m *mockChannelRepo) FindDirect(ctx context.Context, a, b int64) (*models.Channel, error) {
	if m.FindDirectFn != nil {
		return m.FindDirectFn(ctx, a, b)
	}
	return nil, nil
}

func (m *mockChannelRepo) Touch(ctx context.Context, id int64) error {
	if m.TouchFn != nil {
		return m.TouchFn(ctx, id)
	}
	return nil
}

// mockMemberRepo implements database.MemberRepository. IsMember defaults to
// true.
type mockMemberRepo struct {
	AddFn              func(ctx context.Context, channelID, userID int64) error
	RemoveFn           func(ctx context.Context, channelID, userID int64) error
	IsMemberFn         func(ctx context.Context, channelID, userID int64) (bool, error)
	ListByChannelIDsFn func(ctx context.Context, ids []int64) ([]models.ChannelMember, error)
}

func (m *mockMemberRepo) Add(ctx context.Context, channelID, userID int64) error {
	if m.AddFn != nil {
		return m.AddFn(ctx, channelID, userID)
	}
	return nil
}

func (m *mockMemberRepo) Remove(ctx context.Context, channelID, userID int64) error {
	if m.RemoveFn != nil {
		return m.RemoveFn(ctx, channelID, userID)
	}
	return nil
}

func (m *mockMemberRepo) IsMember(ctx context.Context, channelID, userID int64) (bool, error) {
	if m.IsMemberFn != nil {
		return m.IsMemberFn(ctx, channelID, userID)
	}
	return true, nil
}

func (m *mockMemberRepo) ListByChannelIDs(ctx context.Context, ids []int64) ([]models.ChannelMember, error) {
	if m.ListByChannelIDsFn != nil {
		return m.ListByChannelIDsFn(ctx, ids)
	}
	return nil, nil
}

// memMessageRepo is an in-memory database.MessageRepository.
type memMessageRepo struct {
	mu        sync.Mutex
	rows      map[int64]*models.MessageWithSender
	order     []int64
	CreateErr error
	ListErr   error
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{rows: make(map[int64]*models.MessageWithSender)}
}

func (r *memMessageRepo) Create(_ context.Context, msg *models.Message) error {
	if r.CreateErr != nil {
		return r.CreateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[msg.ID] = &models.MessageWithSender{
		Message: *msg,
		Sender:  models.Profile{ID: msg.UserID, DisplayName: "user"},
	}
	r.order = append(r.order, msg.ID)
	return nil
}

func (r *memMessageRepo) GetByID(_ context.Context, id int64) (*models.MessageWithSender, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	cp.Reactions = append([]models.Reaction(nil), m.Reactions...)
	return &cp, nil
}

func (r *memMessageRepo) ListByChannel(_ context.Context, channelID int64) ([]models.MessageWithSender, error) {
	if r.ListErr != nil {
		return nil, r.ListErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.MessageWithSender{}
	for _, id := range r.order {
		if m := r.rows[id]; m.ChannelID == channelID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *memMessageRepo) UpdateContent(_ context.Context, msg *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.rows[msg.ID]; ok {
		m.Content = msg.Content
		m.Mentions = msg.Mentions
		m.UpdatedAt = msg.UpdatedAt
	}
	return nil
}

func (r *memMessageRepo) SetReaction(_ context.Context, messageID, userID int64, emoji string, present bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[messageID]
	if !ok {
		return false, database.ErrNotFound
	}
	next, changed := models.SetReaction(m.Reactions, emoji, userID, present)
	m.Reactions = next
	return changed, nil
}

func (r *memMessageRepo) put(m models.MessageWithSender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := m
	r.rows[m.ID] = &cp
	r.order = append(r.order, m.ID)
}
