package ws

import "encoding/json"

// 与前端 socket 协议一一对应的事件名
const (
	EventCreateRoom     = "create-room"
	EventSendChanges    = "send-changes"
	EventSendCursorMove = "send-cursor-move"
	EventTrackPresence  = "track-presence"
	EventLeavePresence  = "leave-presence"
	EventHeartbeat      = "heartbeat"

	EventReceiveChanges    = "receive-changes"
	EventReceiveCursorMove = "receive-cursor-move"
	EventPresence          = "presence"
	EventWelcome           = "welcome"
	EventError             = "error"
	EventIgnored           = "ignored"
)

// PresenceMember 房间在线成员的展示信息（track 时由客户端声明）
type PresenceMember struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// ClientMessage 客户端入站消息。
// Delta / Range 是不透明负载：中继只转发，不解析（编辑器格式变化不影响服务端）。
type ClientMessage struct {
	Type          string          `json:"type"`
	DocID         string          `json:"docId,omitempty"`
	Delta         json.RawMessage `json:"delta,omitempty"`
	Range         json.RawMessage `json:"range,omitempty"`
	CursorOwnerID string          `json:"cursorOwnerId,omitempty"`
	Member        *PresenceMember `json:"member,omitempty"`
}

type ServerMessage struct {
	Type          string           `json:"type"`
	DocID         string           `json:"docId,omitempty"`
	Delta         json.RawMessage  `json:"delta,omitempty"`
	Range         json.RawMessage  `json:"range,omitempty"`
	CursorOwnerID string           `json:"cursorOwnerId,omitempty"`
	Members       []PresenceMember `json:"members,omitempty"`
	Content       string           `json:"content,omitempty"`
}
