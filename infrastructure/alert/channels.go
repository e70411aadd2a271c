package alert

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss/v2"
	"go.uber.org/zap"
)

// LogChannel 把消息写入 zap 日志
type LogChannel struct {
	logger *zap.Logger
	name   string
}

// NewLogChannel 创建日志通道
func NewLogChannel(name string, logger *zap.Logger) *LogChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogChannel{logger: logger, name: name}
}

// Send 按级别记录日志
func (c *LogChannel) Send(alert Alert) error {
	fields := make([]zap.Field, 0, len(alert.Fields)+1)
	if alert.Source != "" {
		fields = append(fields, zap.String("source", alert.Source))
	}
	for _, k := range sortedKeys(alert.Fields) {
		fields = append(fields, zap.Any(k, alert.Fields[k]))
	}
	switch alert.Level {
	case LevelWarning:
		c.logger.Warn(alert.Message, fields...)
	case LevelError, LevelCritical:
		c.logger.Error(alert.Message, fields...)
	default:
		c.logger.Info(alert.Message, fields...)
	}
	return nil
}

// Name 返回通道名称
func (c *LogChannel) Name() string {
	return c.name
}

var (
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	fieldStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
)

// ConsoleChannel 控制台通道（彩色输出，可关闭颜色）
type ConsoleChannel struct {
	name    string
	out     io.Writer
	noColor bool
	mu      sync.Mutex
}

// NewConsoleChannel 创建控制台通道，out 为空时写 stdout
func NewConsoleChannel(name string, out io.Writer, noColor bool) *ConsoleChannel {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleChannel{name: name, out: out, noColor: noColor}
}

// Send 输出一行消息，例如 "monitor: Watching for updates..."
func (c *ConsoleChannel) Send(alert Alert) error {
	var b strings.Builder
	if alert.Source != "" {
		b.WriteString(c.paint(headerStyle, alert.Source+": "))
	}
	switch alert.Level {
	case LevelWarning:
		b.WriteString(c.paint(warningStyle, alert.Level+" "))
	case LevelError, LevelCritical:
		b.WriteString(c.paint(errorStyle, alert.Level+" "))
	}
	if alert.Level == LevelInfo {
		b.WriteString(c.paint(infoStyle, alert.Message))
	} else {
		b.WriteString(alert.Message)
	}
	for _, k := range sortedKeys(alert.Fields) {
		if k == "event" {
			continue
		}
		b.WriteString(" ")
		b.WriteString(c.paint(fieldStyle, fmt.Sprintf("%s=%v", k, alert.Fields[k])))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.out, b.String())
	return err
}

func (c *ConsoleChannel) paint(style lipgloss.Style, s string) string {
	if c.noColor || s == "" {
		return s
	}
	return style.Render(s)
}

// Name 返回通道名称
func (c *ConsoleChannel) Name() string {
	return c.name
}

// MockChannel 模拟告警通道（用于测试）
type MockChannel struct {
	name      string
	alerts    []Alert
	shouldErr bool
	mu        sync.Mutex
}

// NewMockChannel 创建模拟告警通道
func NewMockChannel(name string) *MockChannel {
	return &MockChannel{
		name:   name,
		alerts: make([]Alert, 0),
	}
}

// Send 记录告警（用于测试验证）
func (c *MockChannel) Send(alert Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shouldErr {
		return fmt.Errorf("mock error")
	}
	c.alerts = append(c.alerts, alert)
	return nil
}

// Name 返回通道名称
func (c *MockChannel) Name() string {
	return c.name
}

// GetAlerts 获取所有接收到的告警
func (c *MockChannel) GetAlerts() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Alert(nil), c.alerts...)
}

// Messages 返回消息文本，便于断言
func (c *MockChannel) Messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.alerts))
	for _, a := range c.alerts {
		out = append(out, a.Message)
	}
	return out
}

// CountMessage 返回某条消息出现的次数
func (c *MockChannel) CountMessage(msg string) int {
	n := 0
	for _, m := range c.Messages() {
		if m == msg {
			n++
		}
	}
	return n
}

// SetShouldError 设置是否返回错误
func (c *MockChannel) SetShouldError(shouldErr bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shouldErr = shouldErr
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
