package codec

import (
	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/danmu-garden-chat/internal/chat"
	"github.com/lk2023060901/danmu-garden-chat/internal/json"
	"github.com/lk2023060901/danmu-garden-chat/internal/network/serializer"
	"github.com/lk2023060901/danmu-garden-chat/pkg/util/merr"
)

// Op 为上行指令的协议号。
type Op uint32

const (
	OpJoin     Op = 1
	OpPart     Op = 2
	OpSend     Op = 3
	OpListMine Op = 4
	OpListAll  Op = 5
	OpDump     Op = 6
)

// 下行帧中除 chat.EventType 之外的查询结果类型。
const (
	TypeMyChannels  = "my_channels"
	TypeAllChannels = "all_channels"
	TypeChannels    = "channels"
)

const (
	channelKindName  = "name"
	channelKindToken = "token"
)

// ChannelRef 是频道 ID 在线上的表示形式。
type ChannelRef struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// RefOf 将频道 ID 转换为线上表示。
func RefOf(id chat.ChannelID) ChannelRef {
	kind := channelKindName
	if id.Kind == chat.KindToken {
		kind = channelKindToken
	}
	return ChannelRef{Kind: kind, Value: id.Value}
}

// ID 将线上表示还原为频道 ID，kind 缺省时视为普通频道名。
func (r ChannelRef) ID() (chat.ChannelID, error) {
	switch r.Kind {
	case channelKindName, "":
		return chat.Named(r.Value), nil
	case channelKindToken:
		return chat.SystemToken(r.Value), nil
	default:
		return chat.ChannelID{}, merr.WrapErrGatewayFrameInvalid("unknown channel kind " + r.Kind)
	}
}

// ClientFrame 为客户端发往服务端的一帧。
type ClientFrame struct {
	Op      Op          `json:"op"`
	Channel *ChannelRef `json:"channel,omitempty"`
	Text    string      `json:"text,omitempty"`
}

// ChannelID 返回帧中携带的频道 ID，缺失时返回 ErrGatewayFrameInvalid。
func (f *ClientFrame) ChannelID() (chat.ChannelID, error) {
	if f.Channel == nil {
		return chat.ChannelID{}, merr.WrapErrGatewayFrameInvalid("missing channel")
	}
	return f.Channel.ID()
}

// ServerFrame 为服务端发往客户端的一帧，Data 延迟到调用方按 Type 解码。
type ServerFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type outboundFrame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// MyChannels 为 OpListMine 的应答数据。
type MyChannels struct {
	Channels []ChannelRef `json:"channels"`
}

// AllChannels 为 OpListAll 的应答数据。
type AllChannels struct {
	Names []string `json:"names"`
}

// ChannelRow 为 OpDump 应答中的一行。
type ChannelRow struct {
	Channel  ChannelRef `json:"channel"`
	Name     string     `json:"name"`
	Members  int        `json:"members"`
	IsSystem bool       `json:"is_system"`
}

// Channels 为 OpDump 的应答数据。
type Channels struct {
	Channels []ChannelRow `json:"channels"`
}

// Codec 负责接入层文本帧与业务对象之间的转换。
//
// Pipeline（服务端写出）：
//
//	event/reply --> {"type","data"} --> serializer --> WebSocket 文本帧
//
// Pipeline（服务端读入）：
//
//	WebSocket 文本帧 --> serializer --> ClientFrame
type Codec interface {
	// EncodeEvent 将 Router 事件编码为下行帧。
	EncodeEvent(ev chat.Event) ([]byte, error)

	// EncodeReply 将查询结果编码为下行帧。
	EncodeReply(typ string, data any) ([]byte, error)

	// DecodeClient 解码一帧上行数据，格式错误时返回 ErrGatewayFrameInvalid。
	DecodeClient(data []byte) (*ClientFrame, error)

	// EncodeClient 与 DecodeServer 供客户端侧使用。
	EncodeClient(f *ClientFrame) ([]byte, error)
	DecodeServer(data []byte) (*ServerFrame, error)
}

type codec struct {
	serializer serializer.Serializer
}

var _ Codec = (*codec)(nil)

// New 创建一个基于给定 Serializer 的 Codec。
func New(ser serializer.Serializer) (Codec, error) {
	if ser == nil {
		return nil, errors.New("codec: serializer is nil")
	}
	return &codec{serializer: ser}, nil
}

// NewJSON 创建一个基于 JSONSerializer 的 Codec。
func NewJSON() Codec {
	return &codec{serializer: serializer.JSONSerializer{}}
}

func (c *codec) EncodeEvent(ev chat.Event) ([]byte, error) {
	if ev == nil {
		return nil, errors.New("codec: event is nil")
	}
	return c.EncodeReply(string(ev.Type()), ev)
}

func (c *codec) EncodeReply(typ string, data any) ([]byte, error) {
	out, err := c.serializer.Marshal(outboundFrame{Type: typ, Data: data})
	if err != nil {
		return nil, errors.Wrapf(err, "codec: marshal %s frame", typ)
	}
	return out, nil
}

func (c *codec) DecodeClient(data []byte) (*ClientFrame, error) {
	var f ClientFrame
	if err := c.serializer.Unmarshal(data, &f); err != nil {
		return nil, merr.WrapErrGatewayFrameInvalid(err.Error())
	}
	if f.Op == 0 {
		return nil, merr.WrapErrGatewayFrameInvalid("missing op")
	}
	return &f, nil
}

func (c *codec) EncodeClient(f *ClientFrame) ([]byte, error) {
	if f == nil {
		return nil, errors.New("codec: frame is nil")
	}
	return c.serializer.Marshal(f)
}

func (c *codec) DecodeServer(data []byte) (*ServerFrame, error) {
	var f ServerFrame
	if err := c.serializer.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "codec: unmarshal server frame")
	}
	return &f, nil
}
