package chat

// Session 抽象了一个已接入的聊天参与者。
//
// 约定：
//   - Router 只会通过这两个方法与 Session 交互；
//   - 实现类型必须可比较（通常为指针），Router 以 == 判断成员身份；
//   - Deliver 在 Router 的处理协程中被同步调用，实现方不应在其中阻塞，
//     也不应同步等待 Router 的查询结果。
type Session interface {
	// Name 返回参与者的显示名。
	Name() string

	// Deliver 向参与者投递一条事件，Router 不关心投递结果。
	Deliver(ev Event)
}

// ConnRef 是接入层为一条连接分配的唯一引用。
type ConnRef string

// Consumer 是 ConsumerRegistry 中的一条登记记录。
type Consumer struct {
	Ref     ConnRef
	Name    string
	Session Session
}
