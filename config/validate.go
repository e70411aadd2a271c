package config

import "fmt"

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }

// Validate ensures every field is within range. An empty monitor path is valid:
// it means nothing is being watched.
func Validate(cfg AppConfig) error {
	if cfg.Monitor.PollDelay <= 0 {
		return ErrInvalid("monitor.pollDelay must be > 0")
	}
	if err := ValidateDebugger(cfg.Debugger); err != nil {
		return err
	}
	if cfg.Host.InstallDir == "" {
		return ErrInvalid("host.installDir is required")
	}
	switch cfg.Log.Format {
	case "json", "console":
	default:
		return ErrInvalid(fmt.Sprintf("log.format must be json or console, got %q", cfg.Log.Format))
	}
	if cfg.Alert.ThrottleInterval < 0 {
		return ErrInvalid("alert.throttleInterval must be >= 0")
	}
	if cfg.Alert.EventHistory < 0 {
		return ErrInvalid("alert.eventHistory must be >= 0")
	}
	if cfg.Manifest.Timeout < 0 {
		return ErrInvalid("manifest.timeout must be >= 0")
	}
	return nil
}

// ValidateDebugger 校验调试器端口与超时
func ValidateDebugger(d DebuggerConfig) error {
	if d.Port < 0 || d.Port > 65535 {
		return ErrInvalid(fmt.Sprintf("debugger.port must be within 0-65535, got %d", d.Port))
	}
	if d.Timeout < 0 {
		return ErrInvalid(fmt.Sprintf("debugger.timeout must be >= 0, got %d", d.Timeout))
	}
	return nil
}
