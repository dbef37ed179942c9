package chat

import (
	"github.com/samber/lo"
)

// ChannelKind 区分普通频道名与系统频道令牌。
type ChannelKind uint8

const (
	KindName ChannelKind = iota
	KindToken
)

func (k ChannelKind) String() string {
	switch k {
	case KindName:
		return "name"
	case KindToken:
		return "token"
	default:
		return "unknown"
	}
}

// DefaultSystemChannel 是未知令牌解析到的系统频道显示名。
const DefaultSystemChannel = "Local"

// systemChannels 为系统频道令牌到显示名的固定映射。
var systemChannels = map[string]string{
	"local": "Local",
	"world": "World",
	"trade": "Trade",
	"guild": "Guild",
	"team":  "Team",
}

// ChannelID 是频道在 ChannelTable 中的键。
//
// 说明：
//   - 值类型，可直接作为 map 键比较；
//   - 未知令牌各自独立成一个频道，只是显示名都为 DefaultSystemChannel。
type ChannelID struct {
	Kind  ChannelKind
	Value string
}

// Named 构造一个普通频道 ID。
func Named(name string) ChannelID {
	return ChannelID{Kind: KindName, Value: name}
}

// SystemToken 构造一个系统频道 ID。
func SystemToken(token string) ChannelID {
	return ChannelID{Kind: KindToken, Value: token}
}

// Resolve 返回频道的显示名以及是否为系统频道。
func (id ChannelID) Resolve() (string, bool) {
	if id.Kind != KindToken {
		return id.Value, false
	}
	if name, ok := systemChannels[id.Value]; ok {
		return name, true
	}
	return DefaultSystemChannel, true
}

func (id ChannelID) String() string {
	return id.Kind.String() + ":" + id.Value
}

// Channel 为频道的成员状态。
// 只由 Router 的处理协程访问。
type Channel struct {
	ID       ChannelID
	Name     string
	IsSystem bool

	// members 按加入顺序排列，不含重复。
	members []Session
}

func newChannel(id ChannelID) *Channel {
	name, isSystem := id.Resolve()
	return &Channel{
		ID:       id,
		Name:     name,
		IsSystem: isSystem,
	}
}

// Members 返回成员列表的副本。
func (c *Channel) Members() []Session {
	return append([]Session(nil), c.members...)
}

func (c *Channel) Len() int {
	return len(c.members)
}

func (c *Channel) Contains(sess Session) bool {
	return lo.Contains(c.members, sess)
}

func (c *Channel) add(sess Session) {
	c.members = append(c.members, sess)
}

// remove 移除 sess，返回 sess 之前是否为成员。
func (c *Channel) remove(sess Session) bool {
	idx := lo.IndexOf(c.members, sess)
	if idx < 0 {
		return false
	}
	c.members = append(c.members[:idx], c.members[idx+1:]...)
	return true
}

func memberNames(members []Session) []string {
	return lo.Map(members, func(sess Session, _ int) string {
		return sess.Name()
	})
}
