// Package reload swaps an installed unit for the latest version of the unit
// being developed, every time the monitor reports a change.
package reload

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"hotswap-go/infrastructure/alert"
	"hotswap-go/manifest"
)

// Host is the plugin runtime units are installed into.
type Host interface {
	Register(name, path string) error
	Unregister(name string) error
	Enable(name string) error
	Disable(name string) error
	Refresh() error
	List() []string
	InstallDir() string
}

// ModuleCache is implemented by hosts that keep loaded code in memory.
type ModuleCache interface {
	Modules(owner string) []string
	Invalidate(id string) bool
}

// Preferences is the persisted state a reload reads and updates.
type Preferences interface {
	MonitorPath() string
	PriorName() string
	SetPriorName(name string) error
	SetDeclaredName(name string) error
	ClearMonitorPath() error
}

// Stopper stops monitoring; *monitor.Monitor implements it.
type Stopper interface {
	Secure()
}

// Observer receives the outcome and duration of every attempt.
type Observer interface {
	ObserveReload(result string, d time.Duration)
}

type Options struct {
	// SelfName is the name of the unit hosting the orchestrator. It is never reloaded or disabled.
	SelfName string
	Host     Host
	Prefs    Preferences
	Manifest manifest.Reader
	Monitor  Stopper
	Logger   *zap.Logger
	Alerts   alert.Sender
	Observer Observer
}

// Orchestrator runs the reload sequence. Attempts are serialized.
type Orchestrator struct {
	mu       sync.Mutex
	self     string
	host     Host
	cache    ModuleCache
	prefs    Preferences
	reader   manifest.Reader
	stopper  Stopper
	tracker  *Tracker
	observer Observer
	logger   *zap.Logger
	msg      messages
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Host == nil || opts.Prefs == nil || opts.Monitor == nil {
		return nil, errors.New("reload: host, preferences and monitor are required")
	}
	if opts.Manifest == nil {
		opts.Manifest = manifest.FileReader{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	logger := opts.Logger.Named("reload")
	o := &Orchestrator{
		self:     Normalize(opts.SelfName),
		host:     opts.Host,
		prefs:    opts.Prefs,
		reader:   opts.Manifest,
		stopper:  opts.Monitor,
		tracker:  NewTracker(),
		observer: opts.Observer,
		logger:   logger,
		msg:      messages{n: alert.NewNotifier("hotswap", opts.Alerts, logger)},
	}
	if c, ok := opts.Host.(ModuleCache); ok {
		o.cache = c
	}
	return o, nil
}

// Tracker exposes the module ownership records.
func (o *Orchestrator) Tracker() *Tracker { return o.tracker }

// Callback adapts Reload for monitor subscription. Failures are already
// reported by Reload, so the callback never fails.
func (o *Orchestrator) Callback() func() error {
	return func() error {
		_ = o.Reload(context.Background())
		return nil
	}
}

// Reload installs and enables the unit at the configured monitor path, replacing
// the previously installed one. Only ErrEmptyPath and ErrSelfReload stop monitoring.
func (o *Orchestrator) Reload(ctx context.Context) (err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("reload panicked", zap.Any("panic", r), zap.Stack("stack"))
			o.msg.unexpected(r)
			err = fmt.Errorf("%w: %v", ErrUnexpected, r)
		}
		if o.observer != nil {
			o.observer.ObserveReload(resultOf(err), time.Since(start))
		}
	}()

	id := Identity{
		SourcePath:          o.prefs.MonitorPath(),
		PriorNormalizedName: o.prefs.PriorName(),
	}
	if id.SourcePath == "" {
		o.msg.emptyPath()
		o.stopper.Secure()
		return ErrEmptyPath
	}

	name, rerr := o.reader.ReadName(ctx, id.SourcePath)
	if rerr != nil {
		o.logger.Warn("manifest read failed", zap.String("path", id.SourcePath), zap.Error(rerr))
		name = ""
	}
	id.DeclaredName = name
	id.NormalizedName = Normalize(name)
	if perr := o.prefs.SetDeclaredName(name); perr != nil {
		o.logger.Warn("persist declared name failed", zap.Error(perr))
	}
	if !installable(id.NormalizedName) {
		if id.NormalizedName != "" {
			o.logger.Warn("unit name is not usable as an install entry", zap.String("name", id.NormalizedName))
		}
		o.msg.invalidManifest(id.SourcePath)
		return fmt.Errorf("%w: %s", ErrInvalidManifest, id.SourcePath)
	}

	if o.self != "" && id.NormalizedName == o.self {
		if perr := o.prefs.ClearMonitorPath(); perr != nil {
			o.logger.Warn("clear monitor path failed", zap.Error(perr))
		}
		o.stopper.Secure()
		o.msg.selfReload(id.NormalizedName)
		return fmt.Errorf("%w: %s", ErrSelfReload, id.NormalizedName)
	}

	if herr := o.swap(id); herr != nil {
		o.logger.Error("hotswap failed", zap.String("unit", id.NormalizedName), zap.Error(herr))
		o.msg.hostError(id.NormalizedName, herr)
		return fmt.Errorf("%w: %w", ErrHostOperation, herr)
	}
	o.msg.success(id.NormalizedName)
	return nil
}

// swap runs the host-facing steps: disable and remove the prior unit, purge its
// cached modules, install the candidate and enable it.
func (o *Orchestrator) swap(id Identity) error {
	prior := id.PriorNormalizedName
	installDir := o.host.InstallDir()

	if prior != "" && !installable(prior) {
		o.logger.Warn("ignoring unusable prior unit name", zap.String("prior", prior))
		prior = ""
	}
	if prior != "" && prior != o.self {
		if slices.Contains(o.host.List(), prior) {
			if err := o.host.Disable(prior); err != nil {
				return fmt.Errorf("disable %s: %w", prior, err)
			}
			o.msg.disabledPrior(prior)
		}
		if !uninstall(installDir, prior) {
			o.logger.Debug("prior unit files already absent", zap.String("unit", prior))
		}
		// 文件已删，注册可能已经不存在
		_ = o.host.Unregister(prior)
		o.purge(prior)
	}

	// 同名单元可能在上次进程中已加载
	if id.NormalizedName != prior {
		o.purge(id.NormalizedName)
	}

	dst, err := install(id.SourcePath, installDir, id.NormalizedName)
	if err != nil {
		return fmt.Errorf("install %s: %w", id.NormalizedName, err)
	}
	o.logger.Info("unit installed", zap.String("unit", id.NormalizedName), zap.String("dest", dst))
	if err := o.prefs.SetPriorName(id.NormalizedName); err != nil {
		o.logger.Warn("persist prior name failed", zap.Error(err))
	}

	if err := o.host.Refresh(); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	enableErr := o.host.Enable(id.NormalizedName)
	if o.cache != nil {
		o.tracker.Record(id.NormalizedName, o.cache.Modules(id.NormalizedName))
	}
	if enableErr != nil {
		return fmt.Errorf("enable %s: %w", id.NormalizedName, enableErr)
	}
	return nil
}

// purge invalidates exactly the modules owned by unit. Units enabled before the
// orchestrator started have no record yet, so the cache is asked directly.
func (o *Orchestrator) purge(unit string) {
	if o.cache == nil {
		return
	}
	ids := o.tracker.Take(unit)
	if len(ids) == 0 {
		ids = o.cache.Modules(unit)
	}
	purged := 0
	for _, id := range ids {
		if o.cache.Invalidate(id) {
			purged++
		}
	}
	o.logger.Debug("module cache purged", zap.String("unit", unit), zap.Int("modules", purged))
}
