// Package host is a file-backed plugin registry: units live in an install
// directory, can be enabled or disabled, and enabled units have their files
// loaded into an in-memory module cache.
package host

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

var (
	ErrUnknownUnit = errors.New("unit is not registered")
	ErrInvalidName = errors.New("unit name must not be empty")
)

// Unit is a registered code unit.
type Unit struct {
	Name    string
	Path    string
	Enabled bool
}

// Module is one loaded file of an enabled unit.
type Module struct {
	ID     string // "<unit>" for single-file units, "<unit>/<relative/path>" otherwise
	Owner  string
	Path   string
	Digest uint64
}

// Registry 插件注册表。并发安全。
type Registry struct {
	installDir string
	mu         sync.RWMutex
	units      map[string]*Unit
	modules    map[string]Module
	logger     *zap.Logger
}

// NewRegistry creates installDir if needed and registers the units already in it.
func NewRegistry(installDir string, logger *zap.Logger) (*Registry, error) {
	if installDir == "" {
		return nil, errors.New("host: install dir is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(installDir, 0o755); err != nil {
		return nil, fmt.Errorf("create install dir: %w", err)
	}
	r := &Registry{
		installDir: installDir,
		units:      make(map[string]*Unit),
		modules:    make(map[string]Module),
		logger:     logger.Named("host"),
	}
	if err := r.Refresh(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) InstallDir() string { return r.installDir }

// Register adds or updates a unit located at path.
func (r *Registry) Register(name, path string) error {
	if name == "" {
		return ErrInvalidName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.units[name]; ok {
		u.Path = path
		return nil
	}
	r.units[name] = &Unit{Name: name, Path: path}
	r.logger.Debug("unit registered", zap.String("unit", name), zap.String("path", path))
	return nil
}

// Unregister removes a unit. Its cached modules are left alone.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.units[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUnit, name)
	}
	delete(r.units, name)
	r.logger.Debug("unit unregistered", zap.String("unit", name))
	return nil
}

// Enable loads the unit's files into the module cache and marks it enabled.
// Files already in the cache are reused as they are.
func (r *Registry) Enable(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.units[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUnit, name)
	}
	loaded, err := r.load(u)
	if err != nil {
		return fmt.Errorf("enable %s: %w", name, err)
	}
	u.Enabled = true
	r.logger.Info("unit enabled", zap.String("unit", name), zap.Int("loaded_modules", loaded))
	return nil
}

// Disable marks the unit disabled. Its cached modules stay until invalidated.
func (r *Registry) Disable(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.units[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUnit, name)
	}
	u.Enabled = false
	r.logger.Info("unit disabled", zap.String("unit", name))
	return nil
}

// Refresh rescans the install directory: new entries are registered, entries
// whose files are gone are dropped.
func (r *Registry) Refresh() error {
	entries, err := os.ReadDir(r.installDir)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", r.installDir, err)
	}
	found := make(map[string]string, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		name := e.Name()
		if !e.IsDir() {
			name = strings.TrimSuffix(name, filepath.Ext(name))
		}
		found[name] = filepath.Join(r.installDir, e.Name())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for name, u := range r.units {
		if _, ok := found[name]; !ok {
			if _, err := os.Stat(u.Path); err != nil {
				delete(r.units, name)
			}
		}
	}
	for name, path := range found {
		if u, ok := r.units[name]; ok {
			u.Path = path
			continue
		}
		r.units[name] = &Unit{Name: name, Path: path}
	}
	return nil
}

// List returns registered unit names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.units))
	for name := range r.units {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unit returns a copy of the named unit.
func (r *Registry) Unit(name string) (Unit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.units[name]
	if !ok {
		return Unit{}, false
	}
	return *u, true
}

// IsEnabled 查询单元是否启用
func (r *Registry) IsEnabled(name string) bool {
	u, ok := r.Unit(name)
	return ok && u.Enabled
}

// Modules returns the cached module IDs owned by owner, sorted.
func (r *Registry) Modules(owner string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, m := range r.modules {
		if m.Owner == owner {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Module returns a cached module.
func (r *Registry) Module(id string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[id]
	return m, ok
}

// Invalidate drops a module from the cache so the next Enable reads it again.
func (r *Registry) Invalidate(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.modules[id]; !ok {
		return false
	}
	delete(r.modules, id)
	return true
}

// load must be called with r.mu held.
func (r *Registry) load(u *Unit) (int, error) {
	info, err := os.Stat(u.Path)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return r.loadFile(u.Name, u.Name, u.Path)
	}
	loaded := 0
	err = filepath.WalkDir(u.Path, func(p string, e fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if e.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(u.Path, p)
		if err != nil {
			return err
		}
		n, err := r.loadFile(u.Name+"/"+filepath.ToSlash(rel), u.Name, p)
		loaded += n
		return err
	})
	return loaded, err
}

func (r *Registry) loadFile(id, owner, path string) (int, error) {
	if _, ok := r.modules[id]; ok {
		return 0, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	r.modules[id] = Module{ID: id, Owner: owner, Path: path, Digest: xxhash.Sum64(raw)}
	return 1, nil
}
