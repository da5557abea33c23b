package database

import (
	"context"
	"errors"

	"github.com/rivaldorose/konsensi-workspace/internal/models"
)

// Lookups by key return (nil, nil) when the row does not exist.

var (
	// ErrNotFound is returned by writes that target a missing row.
	ErrNotFound = errors.New("row not found")
	// ErrDuplicate is returned when a direct channel for the same members
	// already exists.
	ErrDuplicate = errors.New("duplicate row")
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetProfiles(ctx context.Context, ids []int64) ([]models.Profile, error)
	Update(ctx context.Context, user *models.User) error
}

type ChannelRepository interface {
	// Create inserts the channel and a membership row for every id in
	// ch.Members in one transaction. A direct channel whose members already
	// share one fails with ErrDuplicate.
	Create(ctx context.Context, ch *models.Channel) error
	GetByID(ctx context.Context, id int64) (*models.Channel, error)
	// ListVisible returns the channels userID is a member of, ordered by name.
	ListVisible(ctx context.Context, userID int64) ([]models.Channel, error)
	FindDirect(ctx context.Context, userA, userB int64) (*models.Channel, error)
	Touch(ctx context.Context, id int64) error
}

type MemberRepository interface {
	Add(ctx context.Context, channelID, userID int64) error
	Remove(ctx context.Context, channelID, userID int64) error
	IsMember(ctx context.Context, channelID, userID int64) (bool, error)
	ListByChannelIDs(ctx context.Context, channelIDs []int64) ([]models.ChannelMember, error)
}

type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, id int64) (*models.MessageWithSender, error)
	// ListByChannel returns every message of the channel, oldest first.
	ListByChannel(ctx context.Context, channelID int64) ([]models.MessageWithSender, error)
	UpdateContent(ctx context.Context, msg *models.Message) error
	// SetReaction makes userID's emoji reaction present or absent under a
	// row lock and reports whether anything was written.
	SetReaction(ctx context.Context, messageID, userID int64, emoji string, present bool) (bool, error)
}
