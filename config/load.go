package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the hotswap preferences and runtime configuration.
type AppConfig struct {
	Monitor  MonitorConfig  `yaml:"monitor"`
	Debugger DebuggerConfig `yaml:"debugger"`
	Host     HostConfig     `yaml:"host"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Alert    AlertConfig    `yaml:"alert"`
	Manifest ManifestConfig `yaml:"manifest"`
}

type MonitorConfig struct {
	Path         string        `yaml:"path"`         // 被监控的文件或目录
	PollDelay    time.Duration `yaml:"pollDelay"`    // 轮询间隔，如 150ms
	PriorName    string        `yaml:"priorName"`    // 上一次安装的单元（规范化名称）
	DeclaredName string        `yaml:"declaredName"` // 清单中声明的名称，仅用于展示
}

// DebuggerConfig 调试器附加参数，仅存储和校验
type DebuggerConfig struct {
	Port    int `yaml:"port"`
	Timeout int `yaml:"timeout"` // 秒
}

type HostConfig struct {
	InstallDir string `yaml:"installDir"`
	SelfName   string `yaml:"selfName"` // 运行热替换的单元名称，永远不会被重载
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | console
	Output string `yaml:"output"` // stdout | stderr | 文件路径
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"` // 同时提供 /metrics 与 /events
}

type AlertConfig struct {
	Console          bool          `yaml:"console"`
	NoColor          bool          `yaml:"noColor"`
	ThrottleInterval time.Duration `yaml:"throttleInterval"`
	EventHistory     int           `yaml:"eventHistory"` // 新连接回放的事件条数
}

// ManifestConfig 选择清单读取方式。Command 非空时在子进程中读取。
type ManifestConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Command []string      `yaml:"command"`
}

const (
	DefaultPollDelay       = 150 * time.Millisecond
	DefaultDebuggerPort    = 5678
	DefaultDebuggerTimeout = 20
	DefaultSelfName        = "hotswap"
)

// Default returns a config with every field that has a default filled in.
func Default() AppConfig {
	cfg := AppConfig{}
	applyDefaults(&cfg)
	return cfg
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Monitor.PollDelay == 0 {
		cfg.Monitor.PollDelay = DefaultPollDelay
	}
	if cfg.Debugger.Port == 0 {
		cfg.Debugger.Port = DefaultDebuggerPort
	}
	if cfg.Debugger.Timeout == 0 {
		cfg.Debugger.Timeout = DefaultDebuggerTimeout
	}
	if cfg.Host.InstallDir == "" {
		cfg.Host.InstallDir = "units"
	}
	if cfg.Host.SelfName == "" {
		cfg.Host.SelfName = DefaultSelfName
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stderr"
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = "127.0.0.1:9464"
	}
	if cfg.Alert.EventHistory == 0 {
		cfg.Alert.EventHistory = 64
	}
	if cfg.Manifest.Timeout == 0 {
		cfg.Manifest.Timeout = 5 * time.Second
	}
}

// Parse decodes YAML, applies defaults and validates.
func Parse(raw []byte) (AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// LoadWithEnvOverrides loads config then overrides paths from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	return cfg, Validate(cfg)
}

func applyEnv(cfg *AppConfig) {
	if v := os.Getenv("HOTSWAP_MONITOR_PATH"); v != "" {
		cfg.Monitor.Path = v
	}
	if v := os.Getenv("HOTSWAP_INSTALL_DIR"); v != "" {
		cfg.Host.InstallDir = v
	}
}
