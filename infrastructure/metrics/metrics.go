// Package metrics exposes monitor and reload activity to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hotswap-go/monitor"
)

// Collector Prometheus监控指标收集器
type Collector struct {
	registry *prometheus.Registry

	// 监控循环指标，按名称索引，供 monitor.Recorder 使用
	counters map[string]*prometheus.CounterVec

	// 热替换指标
	reloads        *prometheus.CounterVec
	reloadDuration *prometheus.HistogramVec

	// 事件流指标
	eventClients    prometheus.Gauge
	eventsPublished prometheus.Counter
}

// Config 监控配置
type Config struct {
	Namespace string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{Namespace: "hotswap"}
}

// New 创建新的Collector实例
func New(cfg Config) *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      name,
			Help:      help,
		}, labels)
	}

	c := &Collector{
		registry: reg,
		counters: map[string]*prometheus.CounterVec{
			monitor.MetricPolls:            counter(monitor.MetricPolls, "轮询次数"),
			monitor.MetricChanges:          counter(monitor.MetricChanges, "检测到变化的轮询次数"),
			monitor.MetricDeletedFiles:     counter(monitor.MetricDeletedFiles, "检测到的删除文件数"),
			monitor.MetricCallbackFailures: counter(monitor.MetricCallbackFailures, "订阅回调失败次数", "key"),
			monitor.MetricTransitions:      counter(monitor.MetricTransitions, "监控状态切换次数", "state"),
		},
		reloads: counter("reloads_total", "热替换次数（按结果）", "result"),
		reloadDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "reload_duration_seconds",
			Help:      "热替换耗时（秒）",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"result"}),
		eventClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "event_clients",
			Help:      "当前事件流连接数",
		}),
		eventsPublished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "events_published_total",
			Help:      "发布到事件流的事件数",
		}),
	}
	return c
}

// Inc implements monitor.Recorder. Unknown names and label mismatches are ignored.
func (c *Collector) Inc(name string, labels map[string]string) {
	c.Add(name, 1, labels)
}

// Add implements monitor.Recorder.
func (c *Collector) Add(name string, v float64, labels map[string]string) {
	vec, ok := c.counters[name]
	if !ok {
		return
	}
	m, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return
	}
	m.Add(v)
}

// ObserveReload implements reload.Observer.
func (c *Collector) ObserveReload(result string, d time.Duration) {
	c.reloads.WithLabelValues(result).Inc()
	c.reloadDuration.WithLabelValues(result).Observe(d.Seconds())
}

// SetEventClients 更新事件流连接数
func (c *Collector) SetEventClients(n int) {
	c.eventClients.Set(float64(n))
}

// RecordEventPublished 事件发布计数
func (c *Collector) RecordEventPublished() {
	c.eventsPublished.Inc()
}

// Handler 返回HTTP handler用于暴露指标
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
