package acceptor

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lk2023060901/danmu-garden-chat/internal/chat"
	"github.com/lk2023060901/danmu-garden-chat/internal/network/codec"
	"github.com/lk2023060901/danmu-garden-chat/internal/network/session"
)

// Config 描述 Acceptor 在会话层面的配置。
//
// 说明：
//   - SendQueueSize 控制每个连接的发送缓冲队列大小；
//   - MaxConnections 为同时在线的连接上限，超出时新连接以 CloseTryAgainLater 关闭；
//   - ReadLimit 为单个入站文本帧的最大字节数（为 0 表示不限制）；
//   - ReadTimeout/WriteTimeout 控制单次读写的超时时间（为 0 表示不设置 deadline）；
//   - Path 控制 WebSocket 的升级路径（如 "/ws"）。
type Config struct {
	SendQueueSize  int
	MaxConnections int
	ReadLimit      int64

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Path string

	// Upgrader 允许调用方自定义 gorilla/websocket 的升级行为。
	// 若为 nil，则使用内部默认的 Upgrader。
	Upgrader *websocket.Upgrader

	// Codec 为当前接入层使用的编解码器，为 nil 时使用 JSON。
	Codec codec.Codec

	// ValidName 校验连接时携带的显示名，为 nil 时只要求非空。
	ValidName func(name string) bool
}

// 默认配置。
func defaultConfig() Config {
	return Config{
		SendQueueSize:  256,
		MaxConnections: 10000,
		ReadLimit:      4096,
		Path:           "/ws",
	}
}

// Lifecycle 是 acceptor 驱动的参与者生命周期，由 chat.Router 实现。
type Lifecycle interface {
	Connect(ref chat.ConnRef, name string, sess chat.Session)
	Disconnect(ref chat.ConnRef, reason string)
}

var _ Lifecycle = (*chat.Router)(nil)

// Acceptor 抽象了服务器侧的 WebSocket 接入层。
//
// 职责：
//   - 在指定 listener 上监听 HTTP，并处理 WebSocket 升级；
//   - 为每个连接创建 Session，驱动 Connect/Disconnect 并把上行帧交给指令路由；
//   - 维护当前活跃会话列表，便于运维与监控。
type Acceptor interface {
	http.Handler

	// Serve 在给定 listener 上启动服务，阻塞直至 ctx 取消或出现致命错误。
	Serve(ctx context.Context, ln net.Listener) error

	// Close 主动关闭所有会话以及内部资源。
	Close() error

	// Sessions 返回当前活跃会话的快照。
	Sessions() []session.Session
}
