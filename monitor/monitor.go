// Package monitor polls a file or folder for changes and notifies subscribers.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"hotswap-go/infrastructure/alert"
)

const (
	StateInactive = "inactive"
	StateActive   = "active"

	EventWatch  = "watch"
	EventSecure = "secure"
)

// DefaultPollInterval is used when Options.PollInterval is not positive.
const DefaultPollInterval = 150 * time.Millisecond

// Options 监控器依赖
type Options struct {
	PollInterval time.Duration
	Clock        Clock
	Logger       *zap.Logger
	Alerts       alert.Sender
	Recorder     Recorder
}

// Monitor watches a single path. At most one poll is scheduled at any time.
//
// A process should construct one Monitor and hand it to every consumer.
type Monitor struct {
	mu         sync.Mutex
	path       string
	interval   time.Duration
	detector   *Detector
	registry   *Registry
	machine    *fsm.FSM
	timer      Timer
	generation uint64

	clock  Clock
	logger *zap.Logger
	msg    messages
	rec    Recorder
}

// New 创建监控器，初始状态为 inactive
func New(opts Options) *Monitor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Recorder == nil {
		opts.Recorder = noopRecorder{}
	}
	logger := opts.Logger.Named("monitor")

	m := &Monitor{
		interval: opts.PollInterval,
		detector: NewDetector(),
		registry: NewRegistry(logger),
		clock:    opts.Clock,
		logger:   logger,
		msg:      messages{n: alert.NewNotifier("monitor", opts.Alerts, logger)},
		rec:      opts.Recorder,
	}
	m.machine = fsm.NewFSM(
		StateInactive,
		fsm.Events{
			{Name: EventWatch, Src: []string{StateInactive}, Dst: StateActive},
			{Name: EventSecure, Src: []string{StateActive}, Dst: StateInactive},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logger.Debug("monitor state changed", zap.String("from", e.Src), zap.String("to", e.Dst))
				m.rec.Inc(MetricTransitions, map[string]string{"state": e.Dst})
			},
		},
	)
	return m
}

// Path returns the watched path, or "" when unset.
func (m *Monitor) Path() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.path
}

// PollInterval returns the delay between polls.
func (m *Monitor) PollInterval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}

// Active reports whether a poll is scheduled.
func (m *Monitor) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.machine.Is(StateActive)
}

// State returns "active" or "inactive".
func (m *Monitor) State() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.machine.Current()
}

// SetPath changes the watched path. The path must exist; otherwise the current
// path is kept and ErrInvalidPath is returned. Setting the current path again is a no-op.
//
// While active, the next poll scans the new path against a zero timestamp, so it
// reports one change for the switch.
func (m *Monitor) SetPath(path string) error {
	current := m.Path()
	if path == "" {
		m.msg.rejectedPath(path, current)
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	cleaned := filepath.Clean(path)
	if cleaned == current {
		return nil
	}
	count, err := countFiles(cleaned)
	if err != nil {
		m.msg.rejectedPath(path, current)
		return fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}

	m.mu.Lock()
	m.path = cleaned
	m.detector.lastChange = time.Time{}
	m.detector.lastCount = count
	m.mu.Unlock()

	m.msg.pathChanged(cleaned)
	return nil
}

// SetPollInterval changes the delay used for the next reschedule.
func (m *Monitor) SetPollInterval(d time.Duration) error {
	if d <= 0 {
		m.msg.rejectedPollInterval(m.PollInterval())
		return fmt.Errorf("%w: %s", ErrInvalidPollInterval, d)
	}
	m.mu.Lock()
	m.interval = d
	m.mu.Unlock()
	return nil
}

// Watch starts polling. It is a no-op when already active.
//
// The first scan only records a baseline: no callbacks run for files that
// existed before Watch was called.
func (m *Monitor) Watch() error {
	m.mu.Lock()
	path := m.path
	if path == "" || !exists(path) {
		m.mu.Unlock()
		m.msg.invalidDirectory(path)
		m.Secure()
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	if m.machine.Is(StateActive) {
		m.mu.Unlock()
		m.msg.alreadyActive()
		return nil
	}

	if err := m.detector.Seed(path); err != nil {
		m.mu.Unlock()
		m.msg.invalidDirectory(path)
		return fmt.Errorf("seed %s: %w", path, err)
	}
	if _, err := m.detector.ScanAndUpdate(path); err != nil {
		m.mu.Unlock()
		m.msg.invalidDirectory(path)
		return fmt.Errorf("seed %s: %w", path, err)
	}
	if err := m.machine.Event(context.Background(), EventWatch); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("watch: %w", err)
	}
	m.generation++
	m.schedule(m.generation)
	m.mu.Unlock()

	m.msg.watching(path)
	return nil
}

// Secure stops polling. A poll already running finishes its scan but is not rescheduled.
func (m *Monitor) Secure() {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.detector.Reset()
	wasActive := m.machine.Is(StateActive)
	if wasActive {
		m.generation++
		if err := m.machine.Event(context.Background(), EventSecure); err != nil {
			m.logger.Error("secure transition failed", zap.Error(err))
		}
	}
	m.mu.Unlock()

	if wasActive {
		m.msg.secured()
	}
}

// Subscribe registers cb under key; see Registry.Subscribe.
func (m *Monitor) Subscribe(key string, cb Callback) {
	m.registry.Subscribe(key, cb)
}

// Unsubscribe removes every callback under key. Unknown keys only produce a warning.
func (m *Monitor) Unsubscribe(key string) {
	if !m.registry.Unsubscribe(key) {
		m.msg.unableToUnsubscribe(key)
	}
}

// ClearSubscribers 清空所有订阅
func (m *Monitor) ClearSubscribers() {
	m.registry.Clear()
}

// Subscribers exposes the registry for inspection.
func (m *Monitor) Subscribers() *Registry {
	return m.registry
}

// RunCallbacks invokes every subscriber once, as a detected change would.
func (m *Monitor) RunCallbacks() {
	for _, key := range m.registry.InvokeAll() {
		m.rec.Inc(MetricCallbackFailures, map[string]string{"key": key})
	}
}

// schedule must be called with m.mu held.
func (m *Monitor) schedule(gen uint64) {
	m.timer = m.clock.AfterFunc(m.interval, func() { m.tick(gen) })
}

func (m *Monitor) tick(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || !m.machine.Is(StateActive) {
		m.mu.Unlock()
		return
	}
	path := m.path
	res, err := m.detector.ScanAndUpdate(path)
	m.mu.Unlock()

	m.rec.Inc(MetricPolls, nil)
	switch {
	case errors.Is(err, ErrPathNotFound):
		m.msg.pathMissing(path)
		m.Secure()
		return
	case err != nil:
		m.msg.scanFailed(path, err)
	case res.Triggered():
		for _, f := range res.UpdatedFiles {
			m.msg.updatedFile(f)
		}
		if res.DeletedCount > 0 {
			m.msg.deletedFiles(res.DeletedCount)
			m.rec.Add(MetricDeletedFiles, float64(res.DeletedCount), nil)
		}
		m.rec.Inc(MetricChanges, nil)
		m.RunCallbacks()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen == m.generation && m.machine.Is(StateActive) {
		m.schedule(gen)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
