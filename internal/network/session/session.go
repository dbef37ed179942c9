package session

import (
	"context"
	"net"

	"github.com/lk2023060901/danmu-garden-chat/internal/chat"
)

// Session 抽象了接入层的一条客户端连接。
//
// 约定：
//   - 每个 Session 对应一条底层 WebSocket 连接；
//   - ID 由接入层在握手成功后分配（UUID），在进程内全局唯一；
//   - 同时实现 chat.Session，可直接作为 Router 的投递目标。
type Session interface {
	chat.Session

	// ID 返回该会话的连接引用，即在 Router 中登记时使用的 ConnRef。
	ID() chat.ConnRef

	// Context 返回与该会话关联的上下文。
	//
	// 说明：
	//   - 会话关闭时 Context.Done() 被触发，可用于级联取消。
	Context() context.Context

	// RemoteAddr 返回远端地址（客户端地址）。
	//
	// 说明：
	//   - 主要用于日志记录与审计。
	RemoteAddr() net.Addr

	// Reply 向该会话发送一条查询应答。
	//
	// 行为：
	//   - 仅将编码后的帧投递到发送队列，由独立的发送协程写出；
	//   - 发送队列已满时返回 ErrGatewaySendQueueFull，会话已关闭时返回 ctx 错误。
	Reply(typ string, data any) error

	// Close 主动关闭该会话。
	//
	// 说明：
	//   - 关闭底层连接，并触发 Context 的取消；
	//   - 多次调用是幂等的。
	Close() error
}
