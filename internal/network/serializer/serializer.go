package serializer

// Serializer 抽象了接入层“对象 <-> 字节流”的序列化能力。
//
// 设计目标：
//   - 下行事件与上行指令都经过同一个 Serializer；
//   - 调用方通过接口注入具体实现，当前只有基于 sonic 的 JSON 实现。
type Serializer interface {
	// Marshal 将任意对象编码为字节序列。
	Marshal(v any) ([]byte, error)

	// Unmarshal 将字节序列解码到目标对象。
	//
	// v 通常为指针类型，用于接收解码结果。
	Unmarshal(data []byte, v any) error

	// ContentType 返回格式名，用于日志与协商。
	ContentType() string
}
