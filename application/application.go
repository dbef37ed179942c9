package application

import (
	"context"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/danmu-garden-chat/internal/chat"
	"github.com/lk2023060901/danmu-garden-chat/internal/chat/validator"
	"github.com/lk2023060901/danmu-garden-chat/internal/config"
	"github.com/lk2023060901/danmu-garden-chat/internal/diag"
	"github.com/lk2023060901/danmu-garden-chat/internal/network/acceptor"
	"github.com/lk2023060901/danmu-garden-chat/internal/network/router"
	"github.com/lk2023060901/danmu-garden-chat/pkg/log"
	"github.com/lk2023060901/danmu-garden-chat/pkg/metrics"
	"github.com/lk2023060901/danmu-garden-chat/pkg/util/merr"
)

const (
	defaultConfigPath = "./config.yaml"
	configPathEnv     = "CHAT_CONFIG_FILE_PATH"

	debugShutdownTimeout = 3 * time.Second
)

// Application 是聊天服务的运行时容器。
// 负责加载配置、初始化日志与指标，并装配 chat.Router、WebSocket 接入层与诊断服务。
type Application struct {
	args []string
	cfg  *config.Config

	chat      *chat.Router
	gatewayLn net.Listener
	debugLn   net.Listener

	ready chan struct{}
}

// New 创建一个 Application，args 为不含程序名的命令行参数。
func New(args ...string) *Application {
	return &Application{
		args:  args,
		ready: make(chan struct{}),
	}
}

// Run 是服务入口，阻塞直至 ctx 结束或某个服务出错。
//
// 配置文件路径按以下优先级解析：
//  1. 默认：./config.yaml（不存在时使用默认配置）
//  2. 环境变量：CHAT_CONFIG_FILE_PATH
//  3. 命令行：--config <path> 或 --config=<path>
func (a *Application) Run(ctx context.Context) error {
	path, optional, err := resolveConfigPath(a.args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path, optional)
	if err != nil {
		return errors.Wrapf(err, "load config %q", path)
	}
	a.cfg = cfg

	if err := initLogging(&cfg.Log); err != nil {
		return err
	}
	metrics.Register(prometheus.DefaultRegisterer)

	v := validator.New(cfg.Router.ChannelNameMaxLen, cfg.Router.MessageMaxLen)
	a.chat = chat.NewRouter(v,
		chat.WithMailboxSize(cfg.Router.MailboxSize),
		chat.WithMetrics(true),
	)

	routes := router.New()
	if err := router.RegisterChatRoutes(routes, a.chat, cfg.Debug.Enable); err != nil {
		return err
	}
	acc, err := acceptor.NewWSAcceptor(acceptor.Config{
		SendQueueSize:  cfg.Gateway.SendQueueSize,
		MaxConnections: cfg.Gateway.MaxConnections,
		ReadLimit:      cfg.Gateway.ReadLimit,
		ReadTimeout:    cfg.Gateway.ReadTimeout,
		WriteTimeout:   cfg.Gateway.WriteTimeout,
		Path:           cfg.Gateway.Path,
		ValidName:      v.IsValidChannelName,
	}, a.chat, routes, nil)
	if err != nil {
		return err
	}

	if err := a.listen(cfg); err != nil {
		return err
	}

	// Router 由 Stop 停止，保证接入层清理连接时产生的 Disconnect 仍能被处理。
	if err := a.chat.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	defer a.chat.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return acc.Serve(gctx, a.gatewayLn)
	})
	if a.debugLn != nil {
		mux := diag.NewMux(a.chat, prometheus.DefaultGatherer)
		g.Go(func() error {
			return serveDebug(gctx, a.debugLn, mux)
		})
	}

	fields := []zap.Field{zap.String("gateway", a.gatewayLn.Addr().String()), zap.String("path", cfg.Gateway.Path)}
	if a.debugLn != nil {
		fields = append(fields, zap.String("debug", a.debugLn.Addr().String()))
	}
	log.Info("chat service started", fields...)
	close(a.ready)

	err = g.Wait()
	log.Info("chat service stopped", zap.Error(err))
	return err
}

// Ready 在所有监听端口就绪后关闭。
func (a *Application) Ready() <-chan struct{} {
	return a.ready
}

// Config 返回已加载的配置，Run 之前为 nil。
func (a *Application) Config() *config.Config {
	return a.cfg
}

// GatewayAddr 返回 WebSocket 接入层实际监听的地址，Ready 之后可用。
func (a *Application) GatewayAddr() net.Addr {
	return a.gatewayLn.Addr()
}

// DebugAddr 返回诊断服务实际监听的地址；未启用时为 nil。
func (a *Application) DebugAddr() net.Addr {
	if a.debugLn == nil {
		return nil
	}
	return a.debugLn.Addr()
}

func (a *Application) listen(cfg *config.Config) error {
	ln, err := net.Listen("tcp", cfg.Gateway.ListenAddr)
	if err != nil {
		return errors.Wrapf(err, "listen gateway %s", cfg.Gateway.ListenAddr)
	}
	a.gatewayLn = ln

	if !cfg.Debug.Enable {
		return nil
	}
	dln, err := net.Listen("tcp", cfg.Debug.ListenAddr)
	if err != nil {
		_ = ln.Close()
		return errors.Wrapf(err, "listen debug %s", cfg.Debug.ListenAddr)
	}
	a.debugLn = dln
	return nil
}

// resolveConfigPath 返回配置文件路径，以及文件不存在时是否可以忽略。
func resolveConfigPath(args []string) (string, bool, error) {
	configPath, optional := defaultConfigPath, true

	if envPath := strings.TrimSpace(os.Getenv(configPathEnv)); envPath != "" {
		configPath, optional = envPath, false
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" {
			if i+1 >= len(args) {
				return "", false, merr.WrapErrParameterMissing("--config", "missing value after --config")
			}
			configPath, optional = args[i+1], false
			i++
			continue
		}
		if val, ok := strings.CutPrefix(arg, "--config="); ok && val != "" {
			configPath, optional = val, false
		}
	}
	return configPath, optional, nil
}

// initLogging 按配置初始化全局 logger。
func initLogging(cfg *log.Config) error {
	logger, props, err := log.InitLogger(cfg)
	if err != nil {
		return errors.Wrap(err, "init logger")
	}
	log.ReplaceGlobals(logger, props)
	return nil
}

func serveDebug(ctx context.Context, ln net.Listener, h http.Handler) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), debugShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		<-errCh
		return err
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
