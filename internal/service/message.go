package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rivaldorose/konsensi-workspace/internal/database"
	"github.com/rivaldorose/konsensi-workspace/internal/models"
	"github.com/rivaldorose/konsensi-workspace/internal/querycache"
	"github.com/rivaldorose/konsensi-workspace/internal/realtime"
	"github.com/rivaldorose/konsensi-workspace/internal/snowflake"
	"github.com/samber/lo"
)

const (
	maxMessageLength = 4000
	maxAttachments   = 10
	maxEmojiLength   = 64
)

// MessageService owns the message write path: every insert or update is
// followed by a change notification on the channel's topic.
type MessageService struct {
	messages  database.MessageRepository
	channels  database.ChannelRepository
	members   database.MemberRepository
	snowflake *snowflake.Generator
	publisher realtime.Publisher
	cache     *querycache.Cache
}

func NewMessageService(
	messages database.MessageRepository,
	channels database.ChannelRepository,
	members database.MemberRepository,
	sf *snowflake.Generator,
	publisher realtime.Publisher,
	cache *querycache.Cache,
) *MessageService {
	return &MessageService{
		messages:  messages,
		channels:  channels,
		members:   members,
		snowflake: sf,
		publisher: publisher,
		cache:     cache,
	}
}

// CreateMessage validates and stores msg, assigning its ID and timestamps.
// Mentions of non-members are dropped.
func (s *MessageService) CreateMessage(ctx context.Context, msg *models.Message) (*models.MessageWithSender, error) {
	if err := requireMember(ctx, s.members, msg.ChannelID, msg.UserID); err != nil {
		return nil, err
	}
	if n := utf8.RuneCountInString(msg.Content); n == 0 || n > maxMessageLength {
		return nil, BadRequest("INVALID_CONTENT", "message content must be 1-4000 characters")
	}
	if len(msg.Attachments) > maxAttachments {
		return nil, BadRequest("TOO_MANY_ATTACHMENTS", "at most 10 attachments per message")
	}
	for _, a := range msg.Attachments {
		if !ownsAttachment(a, msg.UserID) {
			return nil, BadRequest("INVALID_ATTACHMENT", "attachments must be uploaded by the sender")
		}
	}

	mentions, err := s.memberMentions(ctx, msg.ChannelID, msg.Mentions)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	msg.ID = s.snowflake.Next()
	msg.Mentions = mentions
	msg.Reactions = []models.Reaction{}
	msg.CreatedAt = now
	msg.UpdatedAt = now

	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, backendFailure("create message", err)
	}
	if err := s.channels.Touch(ctx, msg.ChannelID); err != nil {
		slog.Warn("touching channel after message", "channel_id", msg.ChannelID, "error", err)
	}

	full, err := s.messages.GetByID(ctx, msg.ID)
	if err != nil || full == nil {
		return nil, backendFailure("reload message", err)
	}

	s.announce(ctx, realtime.EventInsert, full)
	return full, nil
}

// ListMessages returns a channel's messages, oldest first.
func (s *MessageService) ListMessages(ctx context.Context, channelID, userID int64) ([]models.MessageWithSender, error) {
	if err := requireMember(ctx, s.members, channelID, userID); err != nil {
		return nil, err
	}
	msgs, err := querycache.FetchAs(ctx, s.cache, querycache.MessagesKey(channelID), func(ctx context.Context) ([]models.MessageWithSender, error) {
		return s.messages.ListByChannel(ctx, channelID)
	})
	if err != nil {
		return nil, backendFailure("list messages", err)
	}
	return msgs, nil
}

// EditMessage replaces the content of the caller's own message.
func (s *MessageService) EditMessage(ctx context.Context, channelID, messageID, userID int64, content string, mentionIDs []int64) (*models.MessageWithSender, error) {
	current, err := s.channelMessage(ctx, channelID, messageID, userID)
	if err != nil {
		return nil, err
	}
	if current.UserID != userID {
		return nil, Forbidden("NOT_AUTHOR", "only the sender can edit a message")
	}

	content = strings.TrimSpace(content)
	if n := utf8.RuneCountInString(content); n == 0 || n > maxMessageLength {
		return nil, BadRequest("INVALID_CONTENT", "message content must be 1-4000 characters")
	}
	mentions, err := s.memberMentions(ctx, channelID, mentionIDs)
	if err != nil {
		return nil, err
	}

	msg := current.Message
	msg.Content = content
	msg.Mentions = mentions
	msg.UpdatedAt = time.Now()
	if err := s.messages.UpdateContent(ctx, &msg); err != nil {
		return nil, backendFailure("update message", err)
	}

	full, err := s.messages.GetByID(ctx, messageID)
	if err != nil || full == nil {
		return nil, backendFailure("reload message", err)
	}
	s.announce(ctx, realtime.EventUpdate, full)
	return full, nil
}

// SetReaction makes the caller's emoji reaction present or absent. Setting
// the state it already has changes nothing.
func (s *MessageService) SetReaction(ctx context.Context, channelID, messageID, userID int64, emoji string, present bool) (*models.MessageWithSender, error) {
	if emoji == "" || len(emoji) > maxEmojiLength {
		return nil, BadRequest("INVALID_EMOJI", "invalid emoji")
	}
	current, err := s.channelMessage(ctx, channelID, messageID, userID)
	if err != nil {
		return nil, err
	}

	changed, err := s.messages.SetReaction(ctx, messageID, userID, emoji, present)
	if errors.Is(err, database.ErrNotFound) {
		return nil, NotFound("NOT_FOUND", "message not found")
	}
	if err != nil {
		return nil, backendFailure("set reaction", err)
	}
	if !changed {
		return current, nil
	}

	full, err := s.messages.GetByID(ctx, messageID)
	if err != nil || full == nil {
		return nil, backendFailure("reload message", err)
	}
	s.announce(ctx, realtime.EventUpdate, full)
	return full, nil
}

func (s *MessageService) channelMessage(ctx context.Context, channelID, messageID, userID int64) (*models.MessageWithSender, error) {
	if err := requireMember(ctx, s.members, channelID, userID); err != nil {
		return nil, err
	}
	m, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, backendFailure("get message", err)
	}
	if m == nil || m.ChannelID != channelID {
		return nil, NotFound("NOT_FOUND", "message not found")
	}
	return m, nil
}

func (s *MessageService) memberMentions(ctx context.Context, channelID int64, ids []int64) (models.IDs, error) {
	out := models.IDs{}
	for _, id := range lo.Uniq(ids) {
		ok, err := s.members.IsMember(ctx, channelID, id)
		if err != nil {
			return nil, backendFailure("check mention", err)
		}
		if ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// announce publishes a change notification for m's channel and drops the
// local cached list. A failed publish is logged; the write already happened.
func (s *MessageService) announce(ctx context.Context, event realtime.EventType, m *models.MessageWithSender) {
	s.cache.Invalidate(querycache.MessagesKey(m.ChannelID))

	record, err := json.Marshal(m)
	if err != nil {
		slog.Warn("encoding message record", "message_id", m.ID, "error", err)
	}
	n := realtime.Notification{
		Table:  realtime.TableMessages,
		Event:  event,
		Column: "channel_id",
		Value:  strconv.FormatInt(m.ChannelID, 10),
		Record: record,
	}
	if err := s.publisher.Publish(ctx, n); err != nil {
		slog.Error("publishing message change", "channel_id", m.ChannelID, "event", event, "error", err)
	}
}

