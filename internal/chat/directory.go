package chat

import (
	"context"

	"github.com/rivaldorose/konsensi-workspace/internal/database"
	"github.com/rivaldorose/konsensi-workspace/internal/models"
	"github.com/rivaldorose/konsensi-workspace/internal/querycache"
	"github.com/samber/lo"
)

// Directory lists the channels a user can see, each with its member ids.
type Directory struct {
	channels database.ChannelRepository
	members  database.MemberRepository
	cache    *querycache.Cache
}

func NewDirectory(channels database.ChannelRepository, members database.MemberRepository, cache *querycache.Cache) *Directory {
	return &Directory{channels: channels, members: members, cache: cache}
}

// List returns the principal's channels ordered by name. The result is shared
// with the cache and must not be modified.
func (d *Directory) List(ctx context.Context, principal int64) ([]models.Channel, error) {
	if principal == 0 {
		return nil, ErrNotAuthenticated
	}
	return querycache.FetchAs(ctx, d.cache, querycache.ChannelsKey(principal), func(ctx context.Context) ([]models.Channel, error) {
		return d.load(ctx, principal)
	})
}

func (d *Directory) load(ctx context.Context, principal int64) ([]models.Channel, error) {
	channels, err := d.channels.ListVisible(ctx, principal)
	if err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		return []models.Channel{}, nil
	}

	ids := lo.Map(channels, func(ch models.Channel, _ int) int64 { return ch.ID })
	rows, err := d.members.ListByChannelIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return AttachMembers(channels, rows), nil
}

// Invalidate marks the directories of the given users stale.
func (d *Directory) Invalidate(userIDs ...int64) {
	for _, id := range userIDs {
		d.cache.Invalidate(querycache.ChannelsKey(id))
	}
}

// AttachMembers sets each channel's Members to the user ids of its rows, in
// row order. Channels without rows get an empty list. Rows are not
// deduplicated.
func AttachMembers(channels []models.Channel, rows []models.ChannelMember) []models.Channel {
	byChannel := lo.GroupBy(rows, func(r models.ChannelMember) int64 { return r.ChannelID })

	out := make([]models.Channel, len(channels))
	for i, ch := range channels {
		ch.Members = models.IDs(lo.Map(byChannel[ch.ID], func(r models.ChannelMember, _ int) int64 {
			return r.UserID
		}))
		out[i] = ch
	}
	return out
}
