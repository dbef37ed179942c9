package connector

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	network "github.com/lk2023060901/danmu-garden-chat/internal/network"
	"github.com/lk2023060901/danmu-garden-chat/internal/network/codec"
)

// Config 描述客户端连接的基础配置。
type Config struct {
	SendQueueSize int
	RecvQueueSize int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Codec 为当前连接使用的编解码器，为 nil 时使用 JSON。
	Codec codec.Codec

	// Dialer 允许调用方自定义拨号行为，为 nil 时使用 websocket.DefaultDialer。
	Dialer *websocket.Dialer
}

func defaultConfig() Config {
	return Config{
		SendQueueSize: 1024,
		RecvQueueSize: 1024,
	}
}

// ClientConn 抽象了客户端侧的一条连接。
type ClientConn interface {
	Context() context.Context
	RemoteAddr() net.Addr
	LocalAddr() net.Addr

	// Send 将一条上行帧放入发送队列。
	Send(frame *codec.ClientFrame) error

	// Recv 返回已解码的下行帧；连接结束后通道被关闭。
	//
	// 说明：
	//   - 通道写满时新帧会被丢弃，但 OnMessage 回调仍会被调用。
	Recv() <-chan *codec.ServerFrame

	Close() error
}

// ConnectorHandler 描述客户端在各阶段的回调能力。
type ConnectorHandler interface {
	OnConnected(conn ClientConn)
	OnMessage(conn ClientConn, frame *codec.ServerFrame)
	OnClosed(conn ClientConn, err error)
	OnError(conn ClientConn, stage network.Stage, err error)
}

// NopHandler 是不做任何处理的 ConnectorHandler，便于只关心 Recv 的调用方嵌入。
type NopHandler struct{}

func (NopHandler) OnConnected(ClientConn)                   {}
func (NopHandler) OnMessage(ClientConn, *codec.ServerFrame) {}
func (NopHandler) OnClosed(ClientConn, error)               {}
func (NopHandler) OnError(ClientConn, network.Stage, error) {}

// Connector 抽象了客户端的拨号器。
type Connector interface {
	Dial(ctx context.Context, urlStr string, h ConnectorHandler, header http.Header) (ClientConn, error)
}

// wsConnector 是基于 gorilla/websocket 的默认 Connector 实现。
type wsConnector struct {
	cfg Config
}

// NewWSConnector 创建一个基于 WebSocket 的 Connector。
func NewWSConnector(cfg Config) Connector {
	def := defaultConfig()
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = def.SendQueueSize
	}
	if cfg.RecvQueueSize <= 0 {
		cfg.RecvQueueSize = def.RecvQueueSize
	}
	if cfg.Codec == nil {
		cfg.Codec = codec.NewJSON()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &wsConnector{cfg: cfg}
}

func (c *wsConnector) Dial(ctx context.Context, urlStr string, h ConnectorHandler, header http.Header) (ClientConn, error) {
	if h == nil {
		h = NopHandler{}
	}
	conn, resp, err := c.cfg.Dialer.DialContext(ctx, urlStr, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	// 连接的生命周期独立于拨号上下文。
	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cc := newWSClientConn(connCtx, cancel, conn, c.cfg, h)
	h.OnConnected(cc)
	cc.start()
	return cc, nil
}

// wsClientConn 是基于 WebSocket 的 ClientConn 默认实现。
type wsClientConn struct {
	conn *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc

	cfg Config
	h   ConnectorHandler

	remoteAddr net.Addr
	localAddr  net.Addr

	// sendChan 不会被关闭，发送协程通过 ctx 退出。
	sendChan chan *codec.ClientFrame
	// recvChan 只由接收协程写入，并在其退出时关闭。
	recvChan chan *codec.ServerFrame

	codec codec.Codec

	closeOnce sync.Once
}

func newWSClientConn(
	ctx context.Context,
	cancel context.CancelFunc,
	conn *websocket.Conn,
	cfg Config,
	h ConnectorHandler,
) *wsClientConn {
	return &wsClientConn{
		conn:       conn,
		ctx:        ctx,
		cancel:     cancel,
		cfg:        cfg,
		h:          h,
		remoteAddr: conn.RemoteAddr(),
		localAddr:  conn.LocalAddr(),
		sendChan:   make(chan *codec.ClientFrame, cfg.SendQueueSize),
		recvChan:   make(chan *codec.ServerFrame, cfg.RecvQueueSize),
		codec:      cfg.Codec,
	}
}

func (c *wsClientConn) start() {
	go c.recvLoop()
	go c.sendLoop()
}

// ClientConn 接口实现。

func (c *wsClientConn) Context() context.Context        { return c.ctx }
func (c *wsClientConn) RemoteAddr() net.Addr            { return c.remoteAddr }
func (c *wsClientConn) LocalAddr() net.Addr             { return c.localAddr }
func (c *wsClientConn) Recv() <-chan *codec.ServerFrame { return c.recvChan }
func (c *wsClientConn) Close() error                    { return c.close(nil) }

func (c *wsClientConn) Send(frame *codec.ClientFrame) error {
	select {
	case <-c.ctx.Done():
		return network.ErrSendFailed
	case c.sendChan <- frame:
		return nil
	}
}

func (c *wsClientConn) writeRaw(data []byte) error {
	if c.cfg.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
			c.h.OnError(c, network.StageSend, err)
			_ = c.close(network.ErrSendFailed)
			return network.ErrSendFailed
		}
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.h.OnError(c, network.StageSend, err)
		_ = c.close(err)
		return network.ErrSendFailed
	}
	return nil
}

func (c *wsClientConn) close(cause error) error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.conn.Close()
		c.h.OnClosed(c, cause)
	})
	return err
}

// recvLoop 持续读取 WebSocket 文本帧并解码为 ServerFrame。
func (c *wsClientConn) recvLoop() {
	defer close(c.recvChan)

	for {
		if c.cfg.ReadTimeout > 0 {
			if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
				c.h.OnError(c, network.StageRecvRaw, err)
				_ = c.close(network.ErrRecvFailed)
				return
			}
		}

		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.h.OnError(c, network.StageRecvRaw, err)
			}
			_ = c.close(network.ErrRecvFailed)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		frame, err := c.codec.DecodeServer(data)
		if err != nil {
			c.h.OnError(c, network.StageDecode, err)
			continue
		}

		select {
		case c.recvChan <- frame:
		default:
		}

		c.h.OnMessage(c, frame)
	}
}

// sendLoop 从 sendChan 读取上行帧并使用 Codec 编码后写入 WebSocket。
func (c *wsClientConn) sendLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case frame := <-c.sendChan:
			data, err := c.codec.EncodeClient(frame)
			if err != nil {
				c.h.OnError(c, network.StageEncode, err)
				continue
			}
			if err := c.writeRaw(data); err != nil {
				return
			}
		}
	}
}
