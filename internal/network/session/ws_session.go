package session

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-garden-chat/internal/chat"
	network "github.com/lk2023060901/danmu-garden-chat/internal/network"
	"github.com/lk2023060901/danmu-garden-chat/internal/network/codec"
	"github.com/lk2023060901/danmu-garden-chat/pkg/log"
	"github.com/lk2023060901/danmu-garden-chat/pkg/metrics"
	"github.com/lk2023060901/danmu-garden-chat/pkg/util/merr"
)

// defaultSendQueueSize 为每个会话的发送队列容量。
const defaultSendQueueSize = 256

// Conn 是 WSSession 写出所需的最小连接能力，*websocket.Conn 满足该接口。
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() net.Addr
	Close() error
}

// Options 为 WSSession 的可选配置。
type Options struct {
	SendQueueSize int
	WriteTimeout  time.Duration
}

// WSSession 是基于 WebSocket 的 Session 实现。
//
// 设计目标：
//   - Deliver 由 Router 的处理协程调用，只做编码与非阻塞入队，不会阻塞 Router；
//   - 发送队列已满时丢弃事件并限流告警，慢客户端不会拖慢其他会话；
//   - 所有写操作都在独立的发送协程中完成，避免多 goroutine 并发写 conn。
type WSSession struct {
	id   chat.ConnRef
	name string

	ctx    context.Context
	cancel context.CancelFunc

	conn       Conn
	codec      codec.Codec
	remoteAddr net.Addr

	// sendQueue 为已编码的下行帧队列，只由发送协程消费。
	sendQueue    chan []byte
	writeTimeout time.Duration

	logger *log.MLogger

	closeOnce sync.Once
	closeErr  error
}

// 确保 WSSession 实现了 Session 接口。
var _ Session = (*WSSession)(nil)

// NewWSSession 创建一个会话并启动其发送协程。
//
// 参数：
//   - parent：会话所属的上层上下文；若为 nil，则使用 context.Background()；
//   - id    ：连接引用，应由调用方保证全局唯一；
//   - name  ：参与者显示名；
//   - conn  ：底层 WebSocket 连接；
//   - c     ：用于该连接的 Codec。
func NewWSSession(parent context.Context, id chat.ConnRef, name string, conn Conn, c codec.Codec, opts Options) *WSSession {
	if parent == nil {
		parent = context.Background()
	}
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = defaultSendQueueSize
	}
	ctx, cancel := context.WithCancel(parent)

	s := &WSSession{
		id:           id,
		name:         name,
		ctx:          ctx,
		cancel:       cancel,
		conn:         conn,
		codec:        c,
		remoteAddr:   conn.RemoteAddr(),
		sendQueue:    make(chan []byte, opts.SendQueueSize),
		writeTimeout: opts.WriteTimeout,
		logger: log.With(log.FieldComponent("ws-session"), log.FieldConnRef(string(id))).
			WithRateGroup("ws-session", 1, 5),
	}

	go s.sendLoop()
	return s
}

func (s *WSSession) ID() chat.ConnRef {
	return s.id
}

func (s *WSSession) Name() string {
	return s.name
}

func (s *WSSession) Context() context.Context {
	return s.ctx
}

func (s *WSSession) RemoteAddr() net.Addr {
	return s.remoteAddr
}

// Deliver 实现 chat.Session.Deliver。
func (s *WSSession) Deliver(ev chat.Event) {
	data, err := s.codec.EncodeEvent(ev)
	if err != nil {
		s.logger.RatedWarn("encode event failed", zap.String("stage", string(network.StageEncode)), zap.Error(err))
		return
	}
	if err := s.enqueue(data); err != nil && merr.IsRetryableErr(err) {
		metrics.GatewayDroppedEvents.Inc()
		s.logger.RatedWarn("send queue full, event dropped", zap.String("event", string(ev.Type())))
	}
}

// Reply 实现 Session.Reply。
func (s *WSSession) Reply(typ string, data any) error {
	frame, err := s.codec.EncodeReply(typ, data)
	if err != nil {
		return err
	}
	return s.enqueue(frame)
}

func (s *WSSession) enqueue(frame []byte) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	select {
	case s.sendQueue <- frame:
		return nil
	default:
		return merr.WrapErrGatewaySendQueueFull(string(s.id), cap(s.sendQueue))
	}
}

// Close 实现 Session.Close。
func (s *WSSession) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// sendLoop 为每个会话启动的专职发送协程。
//
// 行为：
//   - 从 sendQueue 中按顺序取出待发送帧并写出；
//   - 写出失败视为会话异常，取消上下文以触发上层清理。
func (s *WSSession) sendLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case frame := <-s.sendQueue:
			if err := s.write(frame); err != nil {
				s.logger.Debug("write frame failed", zap.String("stage", string(network.StageSend)), zap.Error(err))
				s.cancel()
				return
			}
			metrics.GatewayFrames.WithLabelValues(metrics.DirectionOutbound).Inc()
		}
	}
}

func (s *WSSession) write(frame []byte) error {
	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return err
		}
	}
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}
