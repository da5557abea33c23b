package chat

import (
	"context"
	"sync"

	"github.com/rivaldorose/konsensi-workspace/internal/models"
)

// mockChannelRepo implements database.ChannelRepository.
type mockChannelRepo struct {
	ListVisibleFn func(ctx context.Context, userID int64) ([]models.Channel, error)
}

func (m *mockChannelRepo) Create(context.Context, *models.Channel) error { return nil }

func (m *mockChannelRepo) GetByID(context.Context, int64) (*models.Channel, error) { return nil, nil }

func (m *mockChannelRepo) ListVisible(ctx context.Context, userID int64) ([]models.Channel, error) {
	if m.ListVisibleFn != nil {
		return m.ListVisibleFn(ctx, userID)
	}
	return []models.Channel{}, nil
}

func (m *mockChannelRepo) FindDirect(context.Context, int64, int64) (*models.Channel, error) {
	return nil, nil
}

func (m *mockChannelRepo) Touch(context.Context, int64) error { return nil }

// mockMemberRepo implements database.MemberRepository.
type mockMemberRepo struct {
	ListByChannelIDsFn func(ctx context.Context, ids []int64) ([]models.ChannelMember, error)
	calls              int
}

func (m *mockMemberRepo) Add(context.Context, int64, int64) error    { return nil }
func (m *mockMemberRepo) Remove(context.Context, int64, int64) error { return nil }

func (m *mockMemberRepo) IsMember(context.Context, int64, int64) (bool, error) { return true, nil }

func (m *mockMemberRepo) ListByChannelIDs(ctx context.Context, ids []int64) ([]models.ChannelMember, error) {
	m.calls++
	if m.ListByChannelIDsFn != nil {
		return m.ListByChannelIDsFn(ctx, ids)
	}
	return []models.ChannelMember{}, nil
}

// memMessageRepo implements database.MessageRepository over an in-memory
// list per channel and counts list queries.
type memMessageRepo struct {
	mu        sync.Mutex
	byChannel map[int64][]models.MessageWithSender
	lists     map[int64]int
	listErr   error
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{
		byChannel: make(map[int64][]models.MessageWithSender),
		lists:     make(map[int64]int),
	}
}

func (r *memMessageRepo) add(m models.MessageWithSender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byChannel[m.ChannelID] = append(r.byChannel[m.ChannelID], m)
}

func (r *memMessageRepo) listCount(channelID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lists[channelID]
}

func (r *memMessageRepo) Create(_ context.Context, msg *models.Message) error {
	r.add(models.MessageWithSender{Message: *msg})
	return nil
}

func (r *memMessageRepo) GetByID(_ context.Context, id int64) (*models.MessageWithSender, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, list := range r.byChannel {
		for _, m := range list {
			if m.ID == id {
				cp := m
				return &cp, nil
			}
		}
	}
	return nil, nil
}

func (r *memMessageRepo) ListByChannel(_ context.Context, channelID int64) ([]models.MessageWithSender, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists[channelID]++
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]models.MessageWithSender, len(r.byChannel[channelID]))
	copy(out, r.byChannel[channelID])
	return out, nil
}

func (r *memMessageRepo) UpdateContent(context.Context, *models.Message) error { return nil }

func (r *memMessageRepo) SetReaction(context.Context, int64, int64, string, bool) (bool, error) {
	return false, nil
}
