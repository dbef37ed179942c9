package chat

import (
	"github.com/lk2023060901/danmu-garden-chat/pkg/util/merr"
)

// EventType 标识 Router 投递给 Session 的事件种类，同时也是接入层下行帧的 type 字段。
type EventType string

const (
	EventJoinedSelf  EventType = "joined_self"
	EventPeerJoined  EventType = "peer_joined"
	EventChatMessage EventType = "chat_message"
	EventPeerParted  EventType = "peer_parted"
	EventPartedSelf  EventType = "parted_self"
	EventError       EventType = "error"
)

// Event 是 Router 投递给 Session 的通知。
type Event interface {
	Type() EventType
}

// JoinedSelf 通知加入者本人加入成功。
// Roster 为加入前已在频道内的成员名，按加入顺序排列，不含加入者本人。
type JoinedSelf struct {
	Channel string   `json:"channel"`
	Roster  []string `json:"roster"`
}

// PeerJoined 通知频道内已有成员：有新成员加入。
type PeerJoined struct {
	Channel string `json:"channel"`
	Name    string `json:"name"`
}

// ChatMessage 是一条频道聊天消息，发送者本人也会收到。
type ChatMessage struct {
	Channel string `json:"channel"`
	From    string `json:"from"`
	Text    string `json:"text"`
}

// PeerParted 通知频道内剩余成员：有成员离开（主动离开或断线）。
type PeerParted struct {
	Channel string `json:"channel"`
	Name    string `json:"name"`
}

// PartedSelf 通知离开者本人离开成功。
type PartedSelf struct {
	Channel string `json:"channel"`
}

// Error 是投递给出错调用方的错误码通知。
type Error struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

func (JoinedSelf) Type() EventType  { return EventJoinedSelf }
func (PeerJoined) Type() EventType  { return EventPeerJoined }
func (ChatMessage) Type() EventType { return EventChatMessage }
func (PeerParted) Type() EventType  { return EventPeerParted }
func (PartedSelf) Type() EventType  { return EventPartedSelf }
func (Error) Type() EventType       { return EventError }

// NewErrorEvent 将 merr 错误转换为 Error 事件。
func NewErrorEvent(err error) Error {
	return Error{
		Code:    merr.Code(err),
		Message: err.Error(),
	}
}
