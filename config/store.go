package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Store keeps the preferences in memory and persists every change to a YAML file.
// It is safe for concurrent use.
type Store struct {
	path string
	mu   sync.RWMutex
	cfg  AppConfig
}

// Open loads path with env overrides. A missing file starts from defaults and is created.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	cfg, err := LoadWithEnvOverrides(path)
	switch {
	case err == nil:
		s.cfg = cfg
		return s, nil
	case errors.Is(err, fs.ErrNotExist):
		s.cfg = Default()
		applyEnv(&s.cfg)
		if err := s.Save(); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, err
	}
}

// Path 返回配置文件路径
func (s *Store) Path() string { return s.path }

// Config returns a copy of the current configuration.
func (s *Store) Config() AppConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := s.cfg
	cfg.Manifest.Command = append([]string(nil), s.cfg.Manifest.Command...)
	return cfg
}

// Reload re-reads the file, keeping the current configuration when it is invalid.
func (s *Store) Reload() (AppConfig, error) {
	cfg, err := LoadWithEnvOverrides(s.path)
	if err != nil {
		return s.Config(), err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return cfg, nil
}

func (s *Store) MonitorPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Monitor.Path
}

func (s *Store) PriorName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Monitor.PriorName
}

func (s *Store) DeclaredName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Monitor.DeclaredName
}

func (s *Store) SetMonitorPath(path string) error {
	return s.update(func(c *AppConfig) { c.Monitor.Path = path })
}

func (s *Store) ClearMonitorPath() error {
	return s.SetMonitorPath("")
}

func (s *Store) SetPriorName(name string) error {
	return s.update(func(c *AppConfig) { c.Monitor.PriorName = name })
}

func (s *Store) SetDeclaredName(name string) error {
	return s.update(func(c *AppConfig) { c.Monitor.DeclaredName = name })
}

func (s *Store) SetPollDelay(d time.Duration) error {
	return s.update(func(c *AppConfig) { c.Monitor.PollDelay = d })
}

func (s *Store) SetDebugger(port, timeout int) error {
	return s.update(func(c *AppConfig) {
		c.Debugger.Port = port
		c.Debugger.Timeout = timeout
	})
}

// update applies fn to a copy, validates it and persists it. Invalid values leave
// the store unchanged.
func (s *Store) update(fn func(*AppConfig)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cfg
	fn(&next)
	if err := Validate(next); err != nil {
		return err
	}
	if err := writeAtomic(s.path, next); err != nil {
		return err
	}
	s.cfg = next
	return nil
}

// Save 持久化当前配置
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return writeAtomic(s.path, s.cfg)
}

// writeAtomic writes to a temp file in the same directory and renames it over path.
func writeAtomic(path string, cfg AppConfig) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
