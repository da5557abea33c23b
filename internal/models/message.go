package models

import "time"

type Message struct {
	ID          int64        `json:"id,string"`
	ChannelID   int64        `json:"channel_id,string"`
	UserID      int64        `json:"user_id,string"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments"`
	Mentions    IDs          `json:"mentions"`
	Reactions   []Reaction   `json:"reactions"`
	ThreadCount int          `json:"thread_count"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// MessageWithSender is a message denormalized with its sender's public profile.
type MessageWithSender struct {
	Message
	Sender Profile `json:"sender"`
}
