package config

import (
	"io/fs"
	"net"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/danmu-garden-chat/pkg/log"
	"github.com/lk2023060901/danmu-garden-chat/pkg/util/merr"
	"github.com/lk2023060901/danmu-garden-chat/pkg/util/viper"
)

// EnvPrefix 为覆盖配置项的环境变量前缀，例如 CHAT_GATEWAY_LISTEN_ADDR。
const EnvPrefix = "CHAT"

// Config 为聊天服务的完整配置。
type Config struct {
	Router  RouterConfig  `mapstructure:"router"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Debug   DebugConfig   `mapstructure:"debug"`
	Log     log.Config    `mapstructure:"log"`
}

// RouterConfig 对应 chat.Router 与默认校验器。
type RouterConfig struct {
	MailboxSize       int `mapstructure:"mailbox_size"`
	ChannelNameMaxLen int `mapstructure:"channel_name_max_len"`
	MessageMaxLen     int `mapstructure:"message_max_len"`
}

// GatewayConfig 对应 WebSocket 接入层。
type GatewayConfig struct {
	ListenAddr     string        `mapstructure:"listen_addr"`
	Path           string        `mapstructure:"path"`
	SendQueueSize  int           `mapstructure:"send_queue_size"`
	MaxConnections int           `mapstructure:"max_connections"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

// DebugConfig 对应诊断 HTTP 服务（/metrics 与 /debug/channels）。
type DebugConfig struct {
	Enable     bool   `mapstructure:"enable"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// Default 返回带有默认值的配置。
func Default() *Config {
	return &Config{
		Router: RouterConfig{
			MailboxSize:       1024,
			ChannelNameMaxLen: 32,
			MessageMaxLen:     512,
		},
		Gateway: GatewayConfig{
			ListenAddr:     ":7070",
			Path:           "/ws",
			SendQueueSize:  256,
			MaxConnections: 10000,
			ReadLimit:      4096,
			WriteTimeout:   10 * time.Second,
		},
		Debug: DebugConfig{
			Enable:     true,
			ListenAddr: "127.0.0.1:7071",
		},
		Log: log.Config{
			Level:  "info",
			Format: "console",
			Stdout: true,
		},
	}
}

// defaults 将 Default 中的每一项注册为 viper 默认值，使环境变量覆盖对所有 key 生效。
func defaults(v *viper.Config) {
	def := Default()
	v.SetDefault("router.mailbox_size", def.Router.MailboxSize)
	v.SetDefault("router.channel_name_max_len", def.Router.ChannelNameMaxLen)
	v.SetDefault("router.message_max_len", def.Router.MessageMaxLen)

	v.SetDefault("gateway.listen_addr", def.Gateway.ListenAddr)
	v.SetDefault("gateway.path", def.Gateway.Path)
	v.SetDefault("gateway.send_queue_size", def.Gateway.SendQueueSize)
	v.SetDefault("gateway.max_connections", def.Gateway.MaxConnections)
	v.SetDefault("gateway.read_limit", def.Gateway.ReadLimit)
	v.SetDefault("gateway.read_timeout", def.Gateway.ReadTimeout)
	v.SetDefault("gateway.write_timeout", def.Gateway.WriteTimeout)

	v.SetDefault("debug.enable", def.Debug.Enable)
	v.SetDefault("debug.listen_addr", def.Debug.ListenAddr)

	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("log.stdout", def.Log.Stdout)
}

// Load 读取配置文件并叠加 CHAT_ 前缀的环境变量。
//
// 参数：
//   - path    ：配置文件路径，为空时只使用默认值与环境变量；
//   - optional：为 true 时文件不存在不视为错误。
func Load(path string, optional bool) (*Config, error) {
	v := viper.New()
	defaults(v)
	v.BindEnv(EnvPrefix)

	if path != "" {
		_, err := os.Stat(path)
		switch {
		case err == nil:
			if err := v.LoadFile(path); err != nil {
				return nil, err
			}
		case optional && errors.Is(err, fs.ErrNotExist):
		default:
			return nil, errors.Wrapf(err, "config file %s", path)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查各项配置的取值范围，返回合并后的全部错误。
func (c *Config) Validate() error {
	var errs []error
	check := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	check(inRange(1, 1<<20, c.Router.MailboxSize, "router.mailbox_size"))
	check(inRange(1, 256, c.Router.ChannelNameMaxLen, "router.channel_name_max_len"))
	check(inRange(1, 1<<16, c.Router.MessageMaxLen, "router.message_max_len"))

	check(validAddr(c.Gateway.ListenAddr, "gateway.listen_addr"))
	if !strings.HasPrefix(c.Gateway.Path, "/") {
		check(merr.WrapErrParameterInvalidMsg("gateway.path must start with '/', got %q", c.Gateway.Path))
	}
	check(inRange(1, 1<<16, c.Gateway.SendQueueSize, "gateway.send_queue_size"))
	check(inRange(1, 1<<20, c.Gateway.MaxConnections, "gateway.max_connections"))
	if c.Gateway.ReadLimit < 0 {
		check(merr.WrapErrParameterInvalidMsg("gateway.read_limit must not be negative"))
	}
	if c.Gateway.ReadTimeout < 0 || c.Gateway.WriteTimeout < 0 {
		check(merr.WrapErrParameterInvalidMsg("gateway timeouts must not be negative"))
	}

	if c.Debug.Enable {
		check(validAddr(c.Debug.ListenAddr, "debug.listen_addr"))
	}

	return merr.Combine(errs...)
}

func inRange(lower, upper, actual int, key string) error {
	if actual < lower || actual > upper {
		return merr.WrapErrParameterInvalidRange(lower, upper, actual, key)
	}
	return nil
}

func validAddr(addr, key string) error {
	if addr == "" {
		return merr.WrapErrParameterMissing(key)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return merr.WrapErrParameterInvalidMsg("%s: %s", key, err.Error())
	}
	return nil
}
