package alert

import "go.uber.org/zap"

// Notifier 为单个组件发送面向用户的消息，Source 会附在每条消息上。
type Notifier struct {
	source string
	sender Sender
}

// NewNotifier 创建组件通知器。sender 为空时退回到 zap 日志。
func NewNotifier(source string, sender Sender, logger *zap.Logger) *Notifier {
	if sender == nil {
		sender = NewManager([]Channel{NewLogChannel("log", logger)}, 0)
	}
	return &Notifier{source: source, sender: sender}
}

func (n *Notifier) Info(msg string, fields map[string]interface{}) {
	n.send(LevelInfo, msg, fields)
}

func (n *Notifier) Warn(msg string, fields map[string]interface{}) {
	n.send(LevelWarning, msg, fields)
}

func (n *Notifier) Error(msg string, fields map[string]interface{}) {
	n.send(LevelError, msg, fields)
}

func (n *Notifier) send(level, msg string, fields map[string]interface{}) {
	// 发送失败不影响调用方
	_ = n.sender.SendAlert(Alert{
		Source:  n.source,
		Level:   level,
		Message: msg,
		Fields:  fields,
	})
}
