package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	appconfig "hotswap-go/config"
)

// HotReloadConfig 热更新配置
type HotReloadConfig struct {
	Enabled      bool          // 是否启用热更新
	CooldownTime time.Duration // 冷却时间，冷却期内的变化合并为一次
}

// DefaultHotReloadConfig 默认热更新配置
func DefaultHotReloadConfig() HotReloadConfig {
	return HotReloadConfig{
		Enabled:      true,
		CooldownTime: 250 * time.Millisecond,
	}
}

// Loader re-reads the configuration file.
type Loader func() (appconfig.AppConfig, error)

// Applier 把新配置应用到运行中的组件
type Applier interface {
	Apply(cfg appconfig.AppConfig) error
}

// ApplierFunc adapts a function to Applier.
type ApplierFunc func(cfg appconfig.AppConfig) error

func (f ApplierFunc) Apply(cfg appconfig.AppConfig) error { return f(cfg) }

// HotReloader 配置热更新器。
//
// The directory is watched rather than the file, because atomic saves replace
// the file and a file watch would be lost after the first save.
type HotReloader struct {
	config     HotReloadConfig
	configPath string
	watcher    *fsnotify.Watcher
	appliers   map[string]Applier
	loader     Loader
	lastReload time.Time
	pending    *time.Timer
	mu         sync.Mutex
	stopChan   chan struct{}
	doneChan   chan struct{}
	logger     *zap.Logger
}

// NewHotReloader 创建热更新器
func NewHotReloader(configPath string, cfg HotReloadConfig, logger *zap.Logger) (*HotReloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(configPath)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	return &HotReloader{
		config:     cfg,
		configPath: abs,
		watcher:    watcher,
		appliers:   make(map[string]Applier),
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
		logger:     logger.Named("hot_reload"),
	}, nil
}

// SetLoader 设置配置加载函数
func (h *HotReloader) SetLoader(loader Loader) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loader = loader
}

// RegisterApplier 注册参数应用器，按名称顺序执行
func (h *HotReloader) RegisterApplier(name string, applier Applier) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appliers[name] = applier
}

// Start 启动热更新监听
func (h *HotReloader) Start(ctx context.Context) error {
	if !h.config.Enabled {
		return nil
	}

	if err := h.watcher.Add(filepath.Dir(h.configPath)); err != nil {
		return fmt.Errorf("failed to watch config dir: %w", err)
	}

	go h.watch(ctx)

	return nil
}

// Stop 停止热更新
func (h *HotReloader) Stop() error {
	h.mu.Lock()
	if h.pending != nil {
		h.pending.Stop()
		h.pending = nil
	}
	h.mu.Unlock()

	if !h.config.Enabled {
		return h.watcher.Close()
	}

	select {
	case <-h.stopChan:
	default:
		close(h.stopChan)
	}

	// 等待 goroutine 结束（带超时）
	select {
	case <-h.doneChan:
	case <-time.After(1 * time.Second):
		// 超时，可能 watch goroutine 没有启动
	}

	return h.watcher.Close()
}

// watch 监听文件变化
func (h *HotReloader) watch(ctx context.Context) {
	defer close(h.doneChan)

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopChan:
			return
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != h.configPath {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				h.handleConfigChange()
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			// 记录错误但继续监听
			h.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// handleConfigChange reloads immediately, or once at the end of the cooldown
// when a reload ran recently.
func (h *HotReloader) handleConfigChange() {
	h.mu.Lock()
	wait := h.config.CooldownTime - time.Since(h.lastReload)
	if wait > 0 {
		if h.pending == nil {
			h.pending = time.AfterFunc(wait, func() {
				h.mu.Lock()
				h.pending = nil
				h.mu.Unlock()
				_ = h.ReloadNow()
			})
		}
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()
	_ = h.ReloadNow()
}

// ReloadNow loads the file and runs every applier. An applier error is logged
// and does not stop the others.
func (h *HotReloader) ReloadNow() error {
	h.mu.Lock()
	loader := h.loader
	names := make([]string, 0, len(h.appliers))
	for name := range h.appliers {
		names = append(names, name)
	}
	sort.Strings(names)
	appliers := make([]Applier, 0, len(names))
	for _, name := range names {
		appliers = append(appliers, h.appliers[name])
	}
	h.lastReload = time.Now()
	h.mu.Unlock()

	if loader == nil {
		return nil
	}
	cfg, err := loader()
	if err != nil {
		h.logger.Error("failed to reload config", zap.String("path", h.configPath), zap.Error(err))
		return err
	}
	var firstErr error
	for i, a := range appliers {
		if err := a.Apply(cfg); err != nil {
			h.logger.Error("failed to apply config", zap.String("applier", names[i]), zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("apply %s: %w", names[i], err)
			}
		}
	}
	h.logger.Debug("config reloaded", zap.String("path", h.configPath))
	return firstErr
}

// GetLastReloadTime 获取最后重载时间
func (h *HotReloader) GetLastReloadTime() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastReload
}
