package session

import "github.com/lk2023060901/danmu-garden-chat/internal/chat"

// SessionManager 维护当前所有在线会话的索引。
//
// 职责说明：
//   - 只负责会话的注册、查询和移除，不直接创建或关闭底层连接；
//   - Session 的具体生命周期（何时创建/关闭）由 acceptor 决定；
//   - 频道成员关系由 chat.Router 维护，与这里的索引无关。
type SessionManager interface {
	// Register 将一个已创建好的 Session 注册到管理器中。
	//
	// 要求：
	//   - 当存在相同 ID 的会话时，应返回错误，避免覆盖旧会话。
	Register(sess Session) error

	// Get 根据 ID 查找会话。
	Get(id chat.ConnRef) (sess Session, ok bool)

	// Unregister 从管理器中移除指定 ID 的会话。
	//
	// 说明：
	//   - 仅删除索引，不负责调用 sess.Close()。
	Unregister(id chat.ConnRef) error

	// Range 遍历当前所有在线会话。
	//
	// 参数：
	//   - fn：回调函数，入参为每一个 Session；
	//         当 fn 返回 false 时，中断遍历。
	Range(fn func(sess Session) bool)

	// Count 返回当前已注册的会话数量。
	Count() int
}
