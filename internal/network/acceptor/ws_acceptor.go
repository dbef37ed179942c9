package acceptor

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-garden-chat/internal/chat"
	network "github.com/lk2023060901/danmu-garden-chat/internal/network"
	"github.com/lk2023060901/danmu-garden-chat/internal/network/codec"
	"github.com/lk2023060901/danmu-garden-chat/internal/network/router"
	"github.com/lk2023060901/danmu-garden-chat/internal/network/session"
	"github.com/lk2023060901/danmu-garden-chat/pkg/log"
	"github.com/lk2023060901/danmu-garden-chat/pkg/metrics"
	"github.com/lk2023060901/danmu-garden-chat/pkg/util/conc"
	"github.com/lk2023060901/danmu-garden-chat/pkg/util/merr"
)

const (
	defaultInboundQueueSize = 64
	shutdownTimeout         = 5 * time.Second
	closeWriteTimeout       = time.Second
)

// WSAcceptor 是 Acceptor 接口基于 gorilla/websocket 的实现。
//
// 设计目标：
//   - 对外只暴露 Acceptor 接口，不绑定具体业务逻辑；
//   - 内部负责：升级连接、创建 Session、驱动读协程并回调 Lifecycle 与 Router；
//   - 每个连接在协程池中占用一个 worker，连接数上限即协程池容量；
//   - 每个连接的上行帧按到达顺序串行分发。
type WSAcceptor struct {
	log.Binder

	cfg       Config
	upgrader  *websocket.Upgrader
	lifecycle Lifecycle
	router    router.Router
	sessions  session.SessionManager
	pool      *conc.Pool

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// 确保 WSAcceptor 实现了 Acceptor 接口。
var _ Acceptor = (*WSAcceptor)(nil)

// NewWSAcceptor 创建一个 WebSocket 接入器。
//
// 参数：
//   - cfg       ：接入配置，零值字段使用默认值；
//   - lifecycle ：连接建立/断开时回调的参与者生命周期（通常为 chat.Router）；
//   - r         ：上行帧的指令路由；
//   - sm        ：SessionManager，可为 nil，此时使用 BaseSessionManager。
func NewWSAcceptor(cfg Config, lifecycle Lifecycle, r router.Router, sm session.SessionManager) (*WSAcceptor, error) {
	if lifecycle == nil {
		return nil, merr.WrapErrParameterMissing("lifecycle", "acceptor")
	}
	if r == nil {
		return nil, merr.WrapErrParameterMissing("router", "acceptor")
	}

	def := defaultConfig()
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = def.SendQueueSize
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = def.MaxConnections
	}
	if cfg.ReadLimit < 0 {
		cfg.ReadLimit = def.ReadLimit
	}
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	if cfg.Codec == nil {
		cfg.Codec = codec.NewJSON()
	}
	if cfg.ValidName == nil {
		cfg.ValidName = func(name string) bool { return name != "" }
	}
	if sm == nil {
		sm = session.NewBaseSessionManager()
	}

	upgrader := cfg.Upgrader
	if upgrader == nil {
		upgrader = &websocket.Upgrader{
			ReadBufferSize:    1024,
			WriteBufferSize:   1024,
			EnableCompression: true,
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &WSAcceptor{
		cfg:       cfg,
		upgrader:  upgrader,
		lifecycle: lifecycle,
		router:    r,
		sessions:  sm,
		pool:      conc.NewPool(cfg.MaxConnections, conc.WithNonBlocking(true), conc.WithPreAlloc(false)),
		ctx:       ctx,
		cancel:    cancel,
	}
	a.SetLogger(log.With(log.FieldComponent("ws-acceptor")).WithRateGroup("ws-acceptor", 1, 10))
	return a, nil
}

// Path 返回 WebSocket 升级路径。
func (a *WSAcceptor) Path() string {
	return a.cfg.Path
}

// Serve 实现 Acceptor.Serve。
//
// ctx 取消后关闭 HTTP 服务与所有会话，并在所有连接清理完毕后返回。
func (a *WSAcceptor) Serve(ctx context.Context, ln net.Listener) error {
	if ln == nil {
		return merr.WrapErrParameterMissing("listener", "acceptor")
	}

	mux := http.NewServeMux()
	mux.Handle(a.cfg.Path, a)
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	a.Logger().Info("ws acceptor serving", zap.String("addr", ln.Addr().String()), zap.String("path", a.cfg.Path))

	var err error
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = srv.Shutdown(shutdownCtx)
		<-errCh
	case err = <-errCh:
	}

	// Shutdown 不会关闭已被接管的 WebSocket 连接，需要单独关闭。
	if cerr := a.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	return err
}

// ServeHTTP 处理一次 WebSocket 升级请求。
func (a *WSAcceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if a.closed.Load() {
		http.Error(w, "acceptor closed", http.StatusServiceUnavailable)
		return
	}

	name := r.URL.Query().Get("name")
	if !a.cfg.ValidName(name) {
		metrics.GatewayRejectedConnections.Inc()
		http.Error(w, merr.WrapErrGatewayNameInvalid(name).Error(), http.StatusBadRequest)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 失败时已经写出了 HTTP 错误应答。
		a.Logger().RatedWarn("websocket upgrade failed",
			zap.String("stage", string(network.StageHandshake)),
			zap.String("remote", r.RemoteAddr),
			zap.Error(err))
		return
	}

	a.wg.Add(1)
	if err := a.pool.Submit(func() {
		defer a.wg.Done()
		a.handleConnection(conn, name)
	}); err != nil {
		a.wg.Done()
		metrics.GatewayRejectedConnections.Inc()
		a.Logger().RatedWarn("connection rejected", zap.String("remote", r.RemoteAddr), zap.Error(err))
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many connections")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
		_ = conn.Close()
	}
}

// Close 实现 Acceptor.Close。
func (a *WSAcceptor) Close() error {
	a.closeOnce.Do(func() {
		a.closed.Store(true)
		a.cancel()
		a.sessions.Range(func(sess session.Session) bool {
			_ = sess.Close()
			return true
		})
		a.wg.Wait()
		a.pool.Release()
	})
	return nil
}

// Sessions 实现 Acceptor.Sessions。
func (a *WSAcceptor) Sessions() []session.Session {
	out := make([]session.Session, 0, a.sessions.Count())
	a.sessions.Range(func(sess session.Session) bool {
		out = append(out, sess)
		return true
	})
	return out
}

// handleConnection 处理单个连接的生命周期。
//
// 流程：
//  1. 分配连接引用并创建 Session，注册到 SessionManager；
//  2. 调用 Lifecycle.Connect；
//  3. 读协程循环读取并解码文本帧，投递到 per-session 队列；
//  4. 当前协程按顺序从队列中取出帧并交给 Router；
//  5. 读失败或会话被关闭后，调用 Lifecycle.Disconnect 并释放资源。
func (a *WSAcceptor) handleConnection(conn *websocket.Conn, name string) {
	if a.cfg.ReadLimit > 0 {
		conn.SetReadLimit(a.cfg.ReadLimit)
	}

	ref := chat.ConnRef(uuid.NewString())
	sess := session.NewWSSession(a.ctx, ref, name, conn, a.cfg.Codec, session.Options{
		SendQueueSize: a.cfg.SendQueueSize,
		WriteTimeout:  a.cfg.WriteTimeout,
	})
	logger := a.Logger().With(log.FieldConnRef(string(ref)), zap.String("name", name))

	if err := a.sessions.Register(sess); err != nil {
		logger.Warn("register session failed", zap.Error(err))
		_ = sess.Close()
		return
	}
	metrics.GatewayConnections.Inc()
	a.lifecycle.Connect(ref, name, sess)
	logger.Debug("connection established", zap.Stringer("remote", sess.RemoteAddr()))

	// 会话上下文结束时（发送失败或整体关闭）关闭连接，解除读协程的阻塞。
	stop := context.AfterFunc(sess.Context(), func() {
		_ = conn.Close()
	})
	defer stop()

	frames := make(chan *codec.ClientFrame, defaultInboundQueueSize)
	readErr := make(chan error, 1)
	go func() {
		readErr <- a.readLoop(sess, conn, frames)
		close(frames)
	}()

	for frame := range frames {
		if err := a.router.Handle(sess.Context(), sess, frame); err != nil {
			a.frameError(sess, network.StageDispatch, err)
		}
	}

	reason := disconnectReason(<-readErr)
	a.lifecycle.Disconnect(ref, reason)
	_ = a.sessions.Unregister(ref)
	_ = sess.Close()
	metrics.GatewayConnections.Dec()
	logger.Debug("connection closed", zap.String("reason", reason))
}

// readLoop 持续读取文本帧并解码，将结果写入 frames 通道。
//
// 返回值为结束原因，对端正常关闭时同样返回 gorilla 的 CloseError。
func (a *WSAcceptor) readLoop(sess session.Session, conn *websocket.Conn, frames chan<- *codec.ClientFrame) error {
	for {
		if a.cfg.ReadTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout)); err != nil {
				return err
			}
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		metrics.GatewayFrames.WithLabelValues(metrics.DirectionInbound).Inc()

		frame, err := a.cfg.Codec.DecodeClient(data)
		if err != nil {
			a.frameError(sess, network.StageDecode, err)
			continue
		}

		select {
		case frames <- frame:
		case <-sess.Context().Done():
			return sess.Context().Err()
		}
	}
}

// frameError 处理单帧失败：输入类错误以 error 事件回送给该连接，其余只记录日志。
func (a *WSAcceptor) frameError(sess session.Session, stage network.Stage, err error) {
	metrics.GatewayFrameErrors.WithLabelValues(strconv.Itoa(int(merr.Code(err)))).Inc()
	if merr.IsUserError(err) {
		sess.Deliver(chat.NewErrorEvent(err))
		return
	}
	a.Logger().RatedWarn("handle frame failed",
		log.FieldConnRef(string(sess.ID())),
		zap.String("stage", string(stage)),
		zap.Error(err))
}

func disconnectReason(err error) string {
	switch {
	case err == nil:
		return "closed"
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		return "closed by peer"
	case errors.Is(err, context.Canceled), errors.Is(err, net.ErrClosed):
		return "closed by server"
	default:
		return err.Error()
	}
}
