package chat

import (
	"github.com/lk2023060901/danmu-garden-chat/pkg/util/merr"
)

// ConsumerRegistry 维护连接引用到 Consumer 的索引。
//
// 职责说明：
//   - 只负责登记、查询和移除，不触碰频道成员关系；
//   - 由 Router 的处理协程独占访问，不加锁；
//   - Register 在遇到重复引用时返回错误，不覆盖旧记录。
type ConsumerRegistry struct {
	consumers map[ConnRef]*Consumer
}

func NewConsumerRegistry() *ConsumerRegistry {
	return &ConsumerRegistry{
		consumers: make(map[ConnRef]*Consumer),
	}
}

// Register 登记一个 Consumer，引用已存在时返回 ErrConsumerAlreadyConnected。
func (r *ConsumerRegistry) Register(c *Consumer) error {
	if _, exists := r.consumers[c.Ref]; exists {
		return merr.WrapErrConsumerAlreadyConnected(string(c.Ref))
	}
	r.consumers[c.Ref] = c
	return nil
}

func (r *ConsumerRegistry) Get(ref ConnRef) (*Consumer, bool) {
	c, ok := r.consumers[ref]
	return c, ok
}

// Unregister 移除引用并返回被移除的 Consumer，不存在时 ok 为 false。
func (r *ConsumerRegistry) Unregister(ref ConnRef) (*Consumer, bool) {
	c, ok := r.consumers[ref]
	if ok {
		delete(r.consumers, ref)
	}
	return c, ok
}

func (r *ConsumerRegistry) Count() int {
	return len(r.consumers)
}
