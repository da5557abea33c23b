package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rivaldorose/konsensi-workspace/internal/chat"
	"github.com/rivaldorose/konsensi-workspace/internal/database"
	"github.com/rivaldorose/konsensi-workspace/internal/gateway"
	"github.com/rivaldorose/konsensi-workspace/internal/models"
	"github.com/rivaldorose/konsensi-workspace/internal/permissions"
	"github.com/rivaldorose/konsensi-workspace/internal/snowflake"
	"github.com/samber/lo"
)

const maxDescriptionLength = 1000

// ChannelDetail is a channel together with its members' profiles and what
// the caller may do in it.
type ChannelDetail struct {
	models.Channel
	MemberProfiles []models.Profile       `json:"member_profiles"`
	Permissions    permissions.Permission `json:"permissions,string"`
}

// ChannelService handles channel business logic.
type ChannelService struct {
	channels  database.ChannelRepository
	members   database.MemberRepository
	users     database.UserRepository
	directory *chat.Directory
	snowflake *snowflake.Generator
	gateway   gateway.Dispatcher
	sanitizer *bluemonday.Policy
}

func NewChannelService(
	channels database.ChannelRepository,
	members database.MemberRepository,
	users database.UserRepository,
	directory *chat.Directory,
	sf *snowflake.Generator,
	gw gateway.Dispatcher,
) *ChannelService {
	return &ChannelService{
		channels:  channels,
		members:   members,
		users:     users,
		directory: directory,
		snowflake: sf,
		gateway:   gw,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// ListChannels returns the caller's channel directory.
func (s *ChannelService) ListChannels(ctx context.Context, userID int64) ([]models.Channel, error) {
	channels, err := s.directory.List(ctx, userID)
	if errors.Is(err, chat.ErrNotAuthenticated) {
		return nil, Unauthorized("UNAUTHORIZED", "sign in to list channels")
	}
	if err != nil {
		return nil, backendFailure("list channels", err)
	}
	return channels, nil
}

// CreateChannel creates a group channel. The creator is always a member,
// whether or not memberIDs includes it.
func (s *ChannelService) CreateChannel(ctx context.Context, userID int64, name string, description *string, memberIDs []int64) (*models.Channel, error) {
	name = strings.TrimSpace(name)
	if len(name) < 1 || len(name) > 100 {
		return nil, BadRequest("INVALID_NAME", "channel name must be 1-100 characters")
	}

	var desc *string
	if description != nil {
		clean := strings.TrimSpace(s.sanitizer.Sanitize(*description))
		if len(clean) > maxDescriptionLength {
			return nil, BadRequest("INVALID_DESCRIPTION", "description must be at most 1000 characters")
		}
		if clean != "" {
			desc = &clean
		}
	}

	members := lo.Uniq(append([]int64{userID}, memberIDs...))
	if err := s.requireUsers(ctx, members); err != nil {
		return nil, err
	}

	return s.create(ctx, userID, name, models.ChannelKindGroup, desc, members)
}

// OpenDirect returns the direct channel between the caller and otherID,
// creating it on first use.
func (s *ChannelService) OpenDirect(ctx context.Context, userID, otherID int64) (*models.Channel, bool, error) {
	existing, err := s.channels.FindDirect(ctx, userID, otherID)
	if err != nil {
		return nil, false, backendFailure("find direct channel", err)
	}
	if existing != nil {
		existing.Members = lo.Uniq([]int64{userID, otherID})
		return existing, false, nil
	}

	members := lo.Uniq([]int64{userID, otherID})
	profiles, err := s.users.GetProfiles(ctx, members)
	if err != nil {
		return nil, false, backendFailure("get profiles", err)
	}
	if len(profiles) != len(members) {
		return nil, false, NotFound("UNKNOWN_USER", "user not found")
	}
	names := lo.Map(profiles, func(p models.Profile, _ int) string { return p.DisplayName })
	slices.Sort(names)

	ch, err := s.create(ctx, userID, strings.Join(names, ", "), models.ChannelKindDirect, nil, members)
	if errors.Is(err, database.ErrDuplicate) {
		// Another request opened the same pair first.
		existing, err = s.channels.FindDirect(ctx, userID, otherID)
		if err != nil || existing == nil {
			return nil, false, backendFailure("find direct channel after conflict", err)
		}
		existing.Members = models.IDs(members)
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return ch, true, nil
}

func (s *ChannelService) create(ctx context.Context, userID int64, name string, kind models.ChannelKind, desc *string, members []int64) (*models.Channel, error) {
	now := time.Now()
	ch := &models.Channel{
		ID:          s.snowflake.Next(),
		Name:        name,
		Kind:        kind,
		Description: desc,
		CreatedBy:   userID,
		Members:     models.IDs(members),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.channels.Create(ctx, ch); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, err
		}
		return nil, backendFailure("create channel", err)
	}

	s.directory.Invalidate(members...)
	s.gateway.DispatchToUsers(members, gateway.EventChannelCreate, ch)
	return ch, nil
}

// GetChannel returns a channel the caller belongs to. Channels the caller
// cannot see are reported as not found.
func (s *ChannelService) GetChannel(ctx context.Context, channelID, userID int64) (*ChannelDetail, error) {
	ch, err := s.visibleChannel(ctx, channelID, userID)
	if err != nil {
		return nil, err
	}

	rows, err := s.members.ListByChannelIDs(ctx, []int64{channelID})
	if err != nil {
		return nil, backendFailure("list members", err)
	}
	ch = &chat.AttachMembers([]models.Channel{*ch}, rows)[0]

	profiles, err := s.users.GetProfiles(ctx, ch.Members)
	if err != nil {
		return nil, backendFailure("get profiles", err)
	}
	return &ChannelDetail{
		Channel:        *ch,
		MemberProfiles: profiles,
		Permissions:    permissions.ForChannel(ch, userID),
	}, nil
}

// AddMember adds userID to a group channel. Any member may add others.
func (s *ChannelService) AddMember(ctx context.Context, channelID, actorID, userID int64) error {
	ch, err := s.visibleChannel(ctx, channelID, actorID)
	if err != nil {
		return err
	}
	if !permissions.ForChannel(ch, actorID).Has(permissions.PermAddMembers) {
		return BadRequest("DIRECT_CHANNEL", "members of a direct channel cannot change")
	}
	if err := s.requireUsers(ctx, []int64{userID}); err != nil {
		return err
	}

	if err := s.members.Add(ctx, channelID, userID); err != nil {
		return backendFailure("add member", err)
	}
	s.membershipChanged(ctx, ch, userID, gateway.EventChannelMemberAdd)
	return nil
}

// RemoveMember removes userID from a group channel. Members may leave; only
// the creator may remove others, and the creator cannot be removed.
func (s *ChannelService) RemoveMember(ctx context.Context, channelID, actorID, userID int64) error {
	ch, err := s.visibleChannel(ctx, channelID, actorID)
	if err != nil {
		return err
	}
	if ch.Kind == models.ChannelKindDirect {
		return BadRequest("DIRECT_CHANNEL", "members of a direct channel cannot change")
	}
	if userID == ch.CreatedBy {
		return Forbidden("CREATOR_REQUIRED", "the channel creator cannot be removed")
	}
	perms := permissions.ForChannel(ch, actorID)
	if actorID == userID && !perms.Has(permissions.PermLeave) {
		return Forbidden("FORBIDDEN", "you cannot leave this channel")
	}
	if actorID != userID && !perms.Has(permissions.PermRemoveMembers) {
		return Forbidden("FORBIDDEN", "only the channel creator can remove other members")
	}

	if err := s.members.Remove(ctx, channelID, userID); err != nil {
		return backendFailure("remove member", err)
	}
	s.membershipChanged(ctx, ch, userID, gateway.EventChannelMemberRemove)
	return nil
}

func (s *ChannelService) membershipChanged(ctx context.Context, ch *models.Channel, userID int64, event string) {
	if err := s.channels.Touch(ctx, ch.ID); err != nil {
		slog.Warn("touching channel after membership change", "channel_id", ch.ID, "error", err)
	}

	var members []int64
	if rows, err := s.members.ListByChannelIDs(ctx, []int64{ch.ID}); err == nil {
		members = lo.Map(rows, func(r models.ChannelMember, _ int) int64 { return r.UserID })
	} else {
		slog.Warn("listing members after membership change", "channel_id", ch.ID, "error", err)
	}
	s.directory.Invalidate(lo.Uniq(append(members, userID))...)

	data := gateway.MemberChangeData{ChannelID: ch.ID, UserID: userID}
	if event == gateway.EventChannelMemberRemove {
		if others := lo.Without(members, userID); len(others) > 0 {
			s.gateway.DispatchToUsers(others, event, data)
		}
		s.gateway.RevokeChannel(userID, ch.ID)
		return
	}
	s.gateway.DispatchToUsers(lo.Uniq(append(members, userID)), event, data)
}

func (s *ChannelService) visibleChannel(ctx context.Context, channelID, userID int64) (*models.Channel, error) {
	if err := requireMember(ctx, s.members, channelID, userID); err != nil {
		return nil, err
	}
	ch, err := s.channels.GetByID(ctx, channelID)
	if err != nil {
		return nil, backendFailure("get channel", err)
	}
	if ch == nil {
		return nil, NotFound("NOT_FOUND", "channel not found")
	}
	return ch, nil
}

func (s *ChannelService) requireUsers(ctx context.Context, ids []int64) error {
	profiles, err := s.users.GetProfiles(ctx, ids)
	if err != nil {
		return backendFailure("get profiles", err)
	}
	if len(profiles) != len(lo.Uniq(ids)) {
		return NotFound("UNKNOWN_USER", "user not found")
	}
	return nil
}

// requireMember reports non-members as not found so channel existence does
// not leak.
func requireMember(ctx context.Context, members database.MemberRepository, channelID, userID int64) error {
	if userID == 0 {
		return Unauthorized("UNAUTHORIZED", "authentication required")
	}
	ok, err := members.IsMember(ctx, channelID, userID)
	if err != nil {
		return backendFailure("check membership", err)
	}
	if !ok {
		return NotFound("NOT_FOUND", "channel not found")
	}
	return nil
}
