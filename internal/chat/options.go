package chat

const defaultMailboxSize = 1024

type routerOption struct {
	// mailboxSize 为 Router 请求队列的容量。
	mailboxSize int
	// metrics 表示是否上报 Prometheus 指标。
	metrics bool
}

// Option 用于配置 Router 行为的选项函数。
type Option func(opt *routerOption)

func defaultRouterOption() *routerOption {
	return &routerOption{
		mailboxSize: defaultMailboxSize,
		metrics:     true,
	}
}

// WithMailboxSize 设置请求队列容量，非正数时保留默认值。
func WithMailboxSize(size int) Option {
	return func(opt *routerOption) {
		if size > 0 {
			opt.mailboxSize = size
		}
	}
}

func WithMetrics(enable bool) Option {
	return func(opt *routerOption) {
		opt.metrics = enable
	}
}
