package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/rivaldorose/konsensi-workspace/internal/metrics"
	"github.com/rivaldorose/konsensi-workspace/internal/models"
	"github.com/rivaldorose/konsensi-workspace/internal/querycache"
)

var ErrNotAuthenticated = errors.New("not authenticated")

// MessageCreator persists a new message and returns it with its sender.
type MessageCreator interface {
	CreateMessage(ctx context.Context, msg *models.Message) (*models.MessageWithSender, error)
}

// Draft is what a user submits from the composer.
type Draft struct {
	Content     string
	Attachments []models.Attachment
	Mentions    models.IDs
}

type sendKey struct {
	principal int64
	channelID int64
}

// Composer turns drafts into messages.
type Composer struct {
	creator MessageCreator
	cache   *querycache.Cache

	mu       sync.Mutex
	inflight map[sendKey]struct{}
}

func NewComposer(creator MessageCreator, cache *querycache.Cache) *Composer {
	return &Composer{
		creator:  creator,
		cache:    cache,
		inflight: make(map[sendKey]struct{}),
	}
}

// Send creates one message from d in channelID. It returns (nil, nil) without
// contacting the store when the trimmed content is empty or when a send by
// the same principal to the same channel is still running. Errors from the
// store are returned unchanged.
func (c *Composer) Send(ctx context.Context, principal, channelID int64, d Draft) (*models.MessageWithSender, error) {
	content := strings.TrimSpace(d.Content)
	if content == "" {
		metrics.ComposerSends.WithLabelValues("skipped").Inc()
		return nil, nil
	}
	if principal == 0 {
		return nil, ErrNotAuthenticated
	}

	key := sendKey{principal: principal, channelID: channelID}
	c.mu.Lock()
	if _, busy := c.inflight[key]; busy {
		c.mu.Unlock()
		metrics.ComposerSends.WithLabelValues("skipped").Inc()
		return nil, nil
	}
	c.inflight[key] = struct{}{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inflight, key)
		c.mu.Unlock()
	}()

	msg, err := c.creator.CreateMessage(ctx, &models.Message{
		ChannelID:   channelID,
		UserID:      principal,
		Content:     content,
		Attachments: d.Attachments,
		Mentions:    d.Mentions,
	})
	if err != nil {
		metrics.ComposerSends.WithLabelValues("failed").Inc()
		return nil, err
	}
	metrics.ComposerSends.WithLabelValues("sent").Inc()

	mk := querycache.MessagesKey(channelID)
	c.cache.Invalidate(mk)
	if err := c.cache.Refetch(ctx, mk); err != nil {
		slog.Warn("refetching messages after send", "channel_id", channelID, "error", err)
	}
	return msg, nil
}
