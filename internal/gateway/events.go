package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/rivaldorose/konsensi-workspace/internal/chat"
	"github.com/rivaldorose/konsensi-workspace/internal/models"
)

// Op codes for gateway payloads.
const (
	OpDispatch     = 0
	OpHeartbeat    = 1
	OpIdentify     = 2
	OpViewUpdate   = 3
	OpSendMessage  = 5
	OpReconnect    = 7
	OpHello        = 10
	OpHeartbeatAck = 11
)

// Event names for DISPATCH payloads.
const (
	EventReady               = "READY"
	EventMessagesSnapshot    = "MESSAGES_SNAPSHOT"
	EventSendResult          = "SEND_RESULT"
	EventChannelCreate       = "CHANNEL_CREATE"
	EventChannelMemberAdd    = "CHANNEL_MEMBER_ADD"
	EventChannelMemberRemove = "CHANNEL_MEMBER_REMOVE"
)

// GatewayPayload is the envelope for all gateway messages.
type GatewayPayload struct {
	Op       int             `json:"op"`
	Data     json.RawMessage `json:"d,omitempty"`
	Sequence *int64          `json:"s,omitempty"`
	Event    *string         `json:"t,omitempty"`
}

// MemberChangeData is the payload of CHANNEL_MEMBER_ADD and
// CHANNEL_MEMBER_REMOVE.
type MemberChangeData struct {
	ChannelID int64 `json:"channel_id,string"`
	UserID    int64 `json:"user_id,string"`
}

// IdentifyData is sent by the client in an Op 2 IDENTIFY.
type IdentifyData struct {
	Token string `json:"token"`
}

// HelloData is sent by the server after WebSocket connect.
type HelloData struct {
	HeartbeatInterval int `json:"heartbeat_interval"`
}

// ReadyData is sent by the server after successful IDENTIFY.
type ReadyData struct {
	SessionID string           `json:"session_id"`
	UserID    int64            `json:"user_id,string"`
	Channels  []models.Channel `json:"channels"`
}

// ViewUpdateData is sent by the client in an Op 3 VIEW_UPDATE. A null
// channel_id clears the selection.
type ViewUpdateData struct {
	ChannelID *int64 `json:"channel_id,string"`
	InfoOpen  bool   `json:"info_open"`
}

// SendMessageData is sent by the client in an Op 5 SEND_MESSAGE.
type SendMessageData struct {
	ChannelID   int64               `json:"channel_id,string"`
	Content     string              `json:"content"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
	Mentions    models.IDs          `json:"mentions,omitempty"`
}

// MessagesSnapshotData carries the whole message list of the selected
// channel, grouped by local day.
type MessagesSnapshotData struct {
	ChannelID int64          `json:"channel_id,string"`
	Groups    []chat.DayView `json:"groups"`
}

// SendResultData reports the outcome of a SEND_MESSAGE. Draft holds what the
// composer should show afterwards: empty after a send, the submitted draft
// otherwise.
type SendResultData struct {
	ChannelID int64                     `json:"channel_id,string"`
	Sent      *models.MessageWithSender `json:"sent"`
	Skipped   bool                      `json:"skipped,omitempty"`
	Error     string                    `json:"error,omitempty"`
	Draft     SendMessageData           `json:"draft"`
}

// mustMarshal encodes payload structs declared in this file, which cannot
// fail to marshal.
func mustMarshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("gateway: encoding %T: %v", v, err))
	}
	return raw
}
