package router

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/danmu-garden-chat/internal/network/codec"
	"github.com/lk2023060901/danmu-garden-chat/internal/network/session"
	"github.com/lk2023060901/danmu-garden-chat/pkg/util/merr"
)

// Handler 是接入层暴露给业务层的通用指令处理函数签名。
//
// 说明：
//   - sess ：当前会话，用于关联参与者并发送应答；
//   - frame：已经解码的上行帧；
//   - 返回：
//   - resp：可选的应答对象，为 nil 时表示无需自动发送应答；
//   - err ：处理失败时的错误，InputError 类型的错误由上层转换为错误事件回送给客户端。
type Handler func(ctx context.Context, sess session.Session, frame *codec.ClientFrame) (resp any, err error)

// Route 描述一条路由规则：指令协议号 -> 业务 Handler + 应答类型。
type Route struct {
	// Handler 为业务层实现的处理函数。
	Handler Handler

	// RespType 为应答帧使用的 type 字段。
	//
	// 说明：
	//   - 为空时，Router 不会根据 Handler 返回值自动发送应答；
	//     异步指令（join/part/send）的结果由 chat.Router 以事件形式回送。
	RespType string
}

// Router 维护协议号到路由规则的映射，并负责从上行帧到业务 Handler 的调度。
//
// 典型调用链（服务器侧）：
//  1. acceptor 从连接读取文本帧并用 Codec 解码为 ClientFrame；
//  2. 调用 Router.Handle(ctx, sess, frame)；
//  3. Router 根据 frame.Op 找到 Route，调用 Handler；
//  4. 如有需要，通过 sess.Reply 发送应答。
type Router interface {
	// Register 为协议号 op 注册一条路由规则。
	//
	// 要求：
	//   - 同一协议号不允许重复注册，重复时应返回错误。
	Register(op codec.Op, route Route) error

	// Handle 处理一条已经解码的上行帧。
	Handle(ctx context.Context, sess session.Session, frame *codec.ClientFrame) error
}

// defaultRouter 是 Router 接口的基础实现。
type defaultRouter struct {
	routes map[codec.Op]Route
}

// 编译期断言：确保 defaultRouter 实现了 Router 接口。
var _ Router = (*defaultRouter)(nil)

// New 创建一个空的 Router。
func New() Router {
	return &defaultRouter{
		routes: make(map[codec.Op]Route),
	}
}

// Register 实现 Router.Register。
func (r *defaultRouter) Register(op codec.Op, route Route) error {
	if op == 0 {
		return merr.WrapErrParameterInvalidMsg("router: op must not be 0")
	}
	if route.Handler == nil {
		return merr.WrapErrParameterMissing("handler", "router: op="+opString(op))
	}
	if _, exists := r.routes[op]; exists {
		return merr.WrapErrParameterInvalidMsg("router: op=%d already registered", op)
	}
	r.routes[op] = route
	return nil
}

// Handle 实现 Router.Handle。
func (r *defaultRouter) Handle(ctx context.Context, sess session.Session, frame *codec.ClientFrame) error {
	if sess == nil {
		return merr.WrapErrParameterMissing("session")
	}
	if frame == nil {
		return merr.WrapErrParameterMissing("frame")
	}

	route, ok := r.routes[frame.Op]
	if !ok {
		return merr.WrapErrGatewayOpUnknown(uint32(frame.Op))
	}

	resp, err := route.Handler(ctx, sess, frame)
	if err != nil {
		return err
	}

	if route.RespType == "" || resp == nil {
		return nil
	}
	if err := sess.Reply(route.RespType, resp); err != nil {
		return errors.Wrapf(err, "router: send reply failed for op=%d", frame.Op)
	}
	return nil
}
