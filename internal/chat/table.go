package chat

import (
	"github.com/samber/lo"
)

// ChannelTable 维护 ChannelID 到频道状态的映射。
//
// 特性：
//   - 只由 Router 的处理协程访问，因此不加锁；
//   - Range 与 Keys 按频道创建顺序返回；
//   - 表中的频道至少有一个成员，空频道由 Router 负责及时删除。
type ChannelTable struct {
	channels map[ChannelID]*Channel
	order    []ChannelID
}

func NewChannelTable() *ChannelTable {
	return &ChannelTable{
		channels: make(map[ChannelID]*Channel),
	}
}

func (t *ChannelTable) Get(id ChannelID) (*Channel, bool) {
	ch, ok := t.channels[id]
	return ch, ok
}

// Put 插入一个新频道，已存在的 ID 不会改变创建顺序。
func (t *ChannelTable) Put(ch *Channel) {
	if _, exists := t.channels[ch.ID]; !exists {
		t.order = append(t.order, ch.ID)
	}
	t.channels[ch.ID] = ch
}

// Delete 删除频道，ID 不存在时为空操作。
func (t *ChannelTable) Delete(id ChannelID) {
	if _, exists := t.channels[id]; !exists {
		return
	}
	delete(t.channels, id)
	t.order = lo.Without(t.order, id)
}

// Keys 返回当前所有频道 ID 的快照。
// 遍历快照期间删除频道不会影响快照本身。
func (t *ChannelTable) Keys() []ChannelID {
	return append([]ChannelID(nil), t.order...)
}

// Range 按创建顺序遍历频道，fn 返回 false 时中断。
// fn 中不允许增删频道。
func (t *ChannelTable) Range(fn func(ch *Channel) bool) {
	for _, id := range t.order {
		if !fn(t.channels[id]) {
			return
		}
	}
}

func (t *ChannelTable) Len() int {
	return len(t.channels)
}
