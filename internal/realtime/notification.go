package realtime

import (
	"encoding/json"
	"fmt"
	"strconv"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
)

// Notification describes a row change in a watched table. Subscribers treat
// it as a signal only: Record is informational and never merged into state.
type Notification struct {
	Table  string          `json:"table"`
	Event  EventType       `json:"event"`
	Column string          `json:"column"`
	Value  string          `json:"value"`
	Record json.RawMessage `json:"record,omitempty"`
}

// Topic returns the pub/sub topic for changes to table rows where column
// equals value.
func Topic(table, column, value string) string {
	return fmt.Sprintf("realtime:%s:%s=eq.%s", table, column, value)
}

// Topic returns the topic this notification is published on.
func (n Notification) Topic() string {
	return Topic(n.Table, n.Column, n.Value)
}

// MessagesTopic is the topic carrying chat_messages changes for one channel.
func MessagesTopic(channelID int64) string {
	return Topic(TableMessages, "channel_id", strconv.FormatInt(channelID, 10))
}

const TableMessages = "chat_messages"
