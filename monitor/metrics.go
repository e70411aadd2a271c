package monitor

// 监控指标名称，由 infrastructure/metrics 注册到 Prometheus。
const (
	MetricPolls            = "monitor_polls_total"
	MetricChanges          = "monitor_changes_total"
	MetricDeletedFiles     = "monitor_deleted_files_total"
	MetricCallbackFailures = "monitor_callback_failures_total"
	MetricTransitions      = "monitor_state_transitions_total"
)

// Recorder 记录监控计数，实际实现接 Prometheus。
type Recorder interface {
	Inc(name string, labels map[string]string)
	Add(name string, v float64, labels map[string]string)
}

type noopRecorder struct{}

func (noopRecorder) Inc(string, map[string]string)          {}
func (noopRecorder) Add(string, float64, map[string]string) {}
