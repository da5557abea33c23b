package models

import (
	"slices"
	"strconv"
	"strings"
	"time"
)

type ChannelKind string

const (
	ChannelKindGroup  ChannelKind = "group"
	ChannelKindDirect ChannelKind = "direct"
)

// Channel is a conversation scope. Members is joined from
// chat_channel_members rows and is never stored on the channel row itself.
type Channel struct {
	ID          int64       `json:"id,string"`
	Name        string      `json:"name"`
	Kind        ChannelKind `json:"kind"`
	Description *string     `json:"description,omitempty"`
	CreatedBy   int64       `json:"created_by,string"`
	Members     IDs         `json:"members"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type ChannelMember struct {
	ChannelID int64     `json:"channel_id,string"`
	UserID    int64     `json:"user_id,string"`
	JoinedAt  time.Time `json:"joined_at"`
}

// DirectKey identifies the direct channel between members regardless of
// order: the distinct ids ascending, joined by ':'. A channel with yourself
// has a single id.
func DirectKey(members []int64) string {
	ids := slices.Clone(members)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ":")
}
