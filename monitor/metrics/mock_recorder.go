package metrics

import (
	"sort"
	"strings"
	"sync"
)

// MockRecorder 记录所有计数，适合单测。可并发使用。
type MockRecorder struct {
	mu     sync.Mutex
	values map[string]float64
}

func NewMockRecorder() *MockRecorder {
	return &MockRecorder{values: make(map[string]float64)}
}

func (r *MockRecorder) Inc(name string, labels map[string]string) {
	r.Add(name, 1, labels)
}

func (r *MockRecorder) Add(name string, v float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[name] += v
	if len(labels) > 0 {
		r.values[key(name, labels)] += v
	}
}

// Value 返回某个指标的总和（不区分标签）
func (r *MockRecorder) Value(name string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.values[name]
}

// LabeledValue 返回带指定标签的计数
func (r *MockRecorder) LabeledValue(name string, labels map[string]string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.values[key(name, labels)]
}

func key(name string, labels map[string]string) string {
	parts := make([]string, 0, len(labels))
	for k, v := range labels {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	return name + "{" + strings.Join(parts, ",") + "}"
}
