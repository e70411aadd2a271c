package monitor

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Callback runs after the monitor detects a change.
type Callback func() error

// Registry 按订阅 key 保存回调，调用顺序为 key 首次注册顺序 + key 内注册顺序。
type Registry struct {
	mu     sync.Mutex
	order  []string
	subs   map[string][]Callback
	logger *zap.Logger
}

// NewRegistry 创建订阅表
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		subs:   make(map[string][]Callback),
		logger: logger,
	}
}

// Subscribe appends cb under key. Duplicates are kept.
func (r *Registry) Subscribe(key string, cb Callback) {
	if cb == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[key]; !ok {
		r.order = append(r.order, key)
	}
	r.subs[key] = append(r.subs[key], cb)
}

// Unsubscribe removes every callback under key. It reports false if key was never registered.
func (r *Registry) Unsubscribe(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[key]; !ok {
		return false
	}
	delete(r.subs, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Clear 清空所有订阅
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.subs = make(map[string][]Callback)
}

// Keys returns subscription keys in invocation order.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of callbacks registered under key.
func (r *Registry) Len(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[key])
}

type entry struct {
	key string
	cb  Callback
}

func (r *Registry) snapshot() []entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entry
	for _, key := range r.order {
		for _, cb := range r.subs[key] {
			out = append(out, entry{key: key, cb: cb})
		}
	}
	return out
}

// InvokeAll runs every callback outside the lock and returns the keys whose callbacks failed.
// A failing or panicking callback does not stop the ones after it.
func (r *Registry) InvokeAll() []string {
	var failed []string
	for _, e := range r.snapshot() {
		if err := r.invoke(e.cb); err != nil {
			r.logger.Error("subscriber callback failed",
				zap.String("key", e.key),
				zap.Error(err),
			)
			failed = append(failed, e.key)
		}
	}
	return failed
}

func (r *Registry) invoke(cb Callback) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return cb()
}
