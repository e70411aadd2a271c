package container

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"hotswap-go/config"
	"hotswap-go/host"
	"hotswap-go/infrastructure/alert"
	"hotswap-go/infrastructure/logger"
	"hotswap-go/infrastructure/metrics"
	internalconfig "hotswap-go/internal/config"
	"hotswap-go/internal/events"
	"hotswap-go/manifest"
	"hotswap-go/monitor"
	"hotswap-go/reload"
)

// ReloadKey is the subscription key of the reload callback.
const ReloadKey = "hotswap"

// Options 运行时选项，通常来自命令行
type Options struct {
	Console io.Writer // 非空时把用户提示写到这里
	NoColor bool
	// DisableHotReload turns off the preferences file watcher (one-shot commands).
	DisableHotReload bool
}

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	// 配置
	store *config.Store
	opts  Options

	// 基础设施
	logger  *logger.Logger
	metrics *metrics.Collector
	alerts  *alert.Manager
	events  *events.Hub

	// 核心服务
	host         *host.Registry
	monitor      *monitor.Monitor
	orchestrator *reload.Orchestrator
	hotReload    *internalconfig.HotReloader

	// 上次热更新应用的路径，只有它变化时才重新监控
	applyMu     sync.Mutex
	appliedPath string

	// HTTP服务器
	httpServer *http.Server

	// 生命周期管理
	lifecycle *LifecycleManager
}

// New 创建新的Container实例
func New(configPath string, opts Options) (*Container, error) {
	store, err := config.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	return &Container{
		store:     store,
		opts:      opts,
		lifecycle: NewLifecycleManager(),
	}, nil
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}

	if err := c.buildCoreServices(); err != nil {
		return fmt.Errorf("build core services failed: %w", err)
	}

	if !c.opts.DisableHotReload {
		if err := c.buildHotReload(); err != nil {
			return fmt.Errorf("build hot reload failed: %w", err)
		}
	}

	c.registerLifecycleComponents()
	c.logger.Info("container built successfully")
	return nil
}

func (c *Container) buildInfrastructure() error {
	cfg := c.store.Config()

	var err error
	c.logger, err = logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}

	c.metrics = metrics.New(metrics.DefaultConfig())
	c.events = events.NewHub(cfg.Alert.EventHistory, c.metrics, c.logger.Logger)

	channels := []alert.Channel{alert.NewLogChannel("log", c.logger.Logger), c.events}
	if c.opts.Console != nil || cfg.Alert.Console {
		channels = append(channels, alert.NewConsoleChannel("console", c.opts.Console, c.opts.NoColor || cfg.Alert.NoColor))
	}
	c.alerts = alert.NewManager(channels, cfg.Alert.ThrottleInterval)

	c.logger.Info("infrastructure built")
	return nil
}

func (c *Container) buildCoreServices() error {
	cfg := c.store.Config()

	var err error
	c.host, err = host.NewRegistry(cfg.Host.InstallDir, c.logger.Logger)
	if err != nil {
		return err
	}

	c.monitor = monitor.New(monitor.Options{
		PollInterval: cfg.Monitor.PollDelay,
		Logger:       c.logger.Logger,
		Alerts:       c.alerts,
		Recorder:     c.metrics,
	})

	var reader manifest.Reader = manifest.FileReader{Timeout: cfg.Manifest.Timeout}
	if len(cfg.Manifest.Command) > 0 {
		reader = manifest.ExecReader{Command: cfg.Manifest.Command, Timeout: cfg.Manifest.Timeout}
	}

	c.orchestrator, err = reload.New(reload.Options{
		SelfName: cfg.Host.SelfName,
		Host:     c.host,
		Prefs:    c.store,
		Manifest: reader,
		Monitor:  c.monitor,
		Logger:   c.logger.Logger,
		Alerts:   c.alerts,
		Observer: &reloadObserver{metrics: c.metrics, logger: c.logger, store: c.store},
	})
	if err != nil {
		return err
	}
	c.monitor.Subscribe(ReloadKey, c.orchestrator.Callback())

	c.logger.Info("core services built")
	return nil
}

func (c *Container) buildHotReload() error {
	var err error
	c.hotReload, err = internalconfig.NewHotReloader(c.store.Path(), internalconfig.DefaultHotReloadConfig(), c.logger.Logger)
	if err != nil {
		return err
	}
	c.appliedPath = c.store.MonitorPath()
	c.hotReload.SetLoader(c.store.Reload)
	c.hotReload.RegisterApplier("monitor", internalconfig.ApplierFunc(c.applyMonitor))
	return nil
}

// applyMonitor brings the monitor in line with edited preferences. Only a change
// of the configured path starts or stops watching; other edits leave a stopped
// monitor stopped.
func (c *Container) applyMonitor(cfg config.AppConfig) error {
	if cfg.Monitor.PollDelay != c.monitor.PollInterval() {
		if err := c.monitor.SetPollInterval(cfg.Monitor.PollDelay); err != nil {
			return err
		}
	}

	c.applyMu.Lock()
	defer c.applyMu.Unlock()
	path := cfg.Monitor.Path
	if path == c.appliedPath {
		return nil
	}
	c.appliedPath = path
	if path == "" {
		c.monitor.Secure()
		return nil
	}
	if filepath.Clean(path) != c.monitor.Path() {
		if err := c.monitor.SetPath(path); err != nil {
			return err
		}
		c.logger.LogMonitor("path_applied", path, nil)
	}
	if !c.monitor.Active() {
		return c.monitor.Watch()
	}
	return nil
}

func (c *Container) registerLifecycleComponents() {
	c.lifecycle.Register(&monitorComponent{
		monitor: c.monitor,
		store:   c.store,
		logger:  c.logger,
	})
	if c.hotReload != nil {
		c.lifecycle.Register(&hotReloadComponent{reloader: c.hotReload})
	}

	cfg := c.store.Config()
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", c.metrics.Handler())
		mux.Handle("/events", c.events)
		c.lifecycle.Register(&httpServerComponent{
			name:    "http_server",
			handler: mux,
			addr:    cfg.Metrics.Listen,
			logger:  c.logger,
			server:  &c.httpServer,
		})
	}
}

func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	c.logger.Info("container started")
	return nil
}

// ReloadOnce runs a single reload without watching.
func (c *Container) ReloadOnce(ctx context.Context) error {
	return c.orchestrator.Reload(ctx)
}

func (c *Container) Stop() error {
	c.logger.Info("stopping container...")

	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}
	c.events.Close()

	if c.logger != nil {
		c.logger.Close()
	}
	return err
}

func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

func (c *Container) Store() *config.Store { return c.store }
func (c *Container) Monitor() *monitor.Monitor { return c.monitor }
func (c *Container) Orchestrator() *reload.Orchestrator { return c.orchestrator }
func (c *Container) Host() *host.Registry { return c.host }
func (c *Container) Events() *events.Hub { return c.events }
func (c *Container) Metrics() *metrics.Collector { return c.metrics }
func (c *Container) HotReloader() *internalconfig.HotReloader { return c.hotReload }

// reloadObserver 同时记录指标与日志
type reloadObserver struct {
	metrics *metrics.Collector
	logger  *logger.Logger
	store   *config.Store
}

func (o *reloadObserver) ObserveReload(result string, d time.Duration) {
	o.metrics.ObserveReload(result, d)
	o.logger.LogReload(result, d, map[string]interface{}{
		"unit": o.store.PriorName(),
		"path": o.store.MonitorPath(),
	})
}
