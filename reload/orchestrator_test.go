package reload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotswap-go/host"
	"hotswap-go/infrastructure/alert"
)

type memPrefs struct {
	mu       sync.Mutex
	path     string
	prior    string
	declared string
}

func (p *memPrefs) MonitorPath() string { p.mu.Lock(); defer p.mu.Unlock(); return p.path }
func (p *memPrefs) PriorName() string   { p.mu.Lock(); defer p.mu.Unlock(); return p.prior }
func (p *memPrefs) SetPriorName(n string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prior = n
	return nil
}
func (p *memPrefs) SetDeclaredName(n string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.declared = n
	return nil
}
func (p *memPrefs) ClearMonitorPath() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.path = ""
	return nil
}

type stopper struct{ calls int }

func (s *stopper) Secure() { s.calls++ }

// recordingHost wraps a real registry and records every call.
type recordingHost struct {
	*host.Registry
	calls     []string
	enableErr error
}

func (h *recordingHost) Register(name, path string) error {
	h.calls = append(h.calls, "register:"+name)
	return h.Registry.Register(name, path)
}
func (h *recordingHost) Unregister(name string) error {
	h.calls = append(h.calls, "unregister:"+name)
	return h.Registry.Unregister(name)
}
func (h *recordingHost) Enable(name string) error {
	h.calls = append(h.calls, "enable:"+name)
	if h.enableErr != nil {
		return h.enableErr
	}
	return h.Registry.Enable(name)
}
func (h *recordingHost) Disable(name string) error {
	h.calls = append(h.calls, "disable:"+name)
	return h.Registry.Disable(name)
}
func (h *recordingHost) Refresh() error {
	h.calls = append(h.calls, "refresh")
	return h.Registry.Refresh()
}

type observer struct {
	results []string
}

func (o *observer) ObserveReload(result string, _ time.Duration) { o.results = append(o.results, result) }

type rig struct {
	o     *Orchestrator
	host  *recordingHost
	prefs *memPrefs
	stop  *stopper
	ch    *alert.MockChannel
	obs   *observer
}

func newRig(t *testing.T, self string) rig {
	t.Helper()
	reg, err := host.NewRegistry(filepath.Join(t.TempDir(), "installed"), nil)
	require.NoError(t, err)
	r := rig{
		host:  &recordingHost{Registry: reg},
		prefs: &memPrefs{},
		stop:  &stopper{},
		ch:    alert.NewMockChannel("mock"),
		obs:   &observer{},
	}
	r.o, err = New(Options{
		SelfName: self,
		Host:     r.host,
		Prefs:    r.prefs,
		Monitor:  r.stop,
		Alerts:   alert.NewManager([]alert.Channel{r.ch}, 0),
		Observer: r.obs,
	})
	require.NoError(t, err)
	return r
}

// unitDir creates a directory unit with a manifest and one source file.
func unitDir(t *testing.T, name, body string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "src")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte("name: "+name+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib", "main.py"), []byte(body), 0o644))
	return dir
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		" My Add-On ":  "my-add-on",
		"Simple":       "simple",
		"two  spaces":  "two--spaces",
		"":             "",
		"   ":          "",
		"already-norm": "already-norm",
	}
	for in, want := range cases {
		got := Normalize(in)
		assert.Equal(t, want, got, in)
		assert.Equal(t, got, Normalize(got), "idempotent for %q", in)
	}
}

func TestReloadInstallsAndEnables(t *testing.T) {
	r := newRig(t, "hotswap")
	r.prefs.path = unitDir(t, "My Unit", "v1")

	require.NoError(t, r.o.Reload(context.Background()))

	installed := filepath.Join(r.host.InstallDir(), "my-unit", "lib", "main.py")
	assert.FileExists(t, installed)
	assert.True(t, r.host.IsEnabled("my-unit"))
	assert.Equal(t, "my-unit", r.prefs.prior)
	assert.Equal(t, "My Unit", r.prefs.declared)
	assert.Equal(t, 0, r.stop.calls)
	assert.Equal(t, 1, r.ch.CountMessage("Hotswap successfully completed."))
	assert.Equal(t, []string{ResultSuccess}, r.obs.results)
	assert.ElementsMatch(t, []string{"my-unit/lib/main.py", "my-unit/manifest.yaml"}, r.o.Tracker().Owned("my-unit"))
}

func TestReloadServesFreshCode(t *testing.T) {
	r := newRig(t, "hotswap")
	src := unitDir(t, "unit", "v1")
	r.prefs.path = src
	require.NoError(t, r.o.Reload(context.Background()))

	require.NoError(t, os.WriteFile(filepath.Join(src, "lib", "main.py"), []byte("v2"), 0o644))
	require.NoError(t, r.o.Reload(context.Background()))

	m, ok := r.host.Module("unit/lib/main.py")
	require.True(t, ok)
	assert.Equal(t, xxhash.Sum64String("v2"), m.Digest)
	assert.Contains(t, r.host.calls, "disable:unit")
}

// Without the purge the host keeps serving the cached digest after a re-enable.
func TestHostServesStaleCodeWithoutPurge(t *testing.T) {
	reg, err := host.NewRegistry(t.TempDir(), nil)
	require.NoError(t, err)
	file := filepath.Join(reg.InstallDir(), "unit.py")
	require.NoError(t, os.WriteFile(file, []byte("v1"), 0o644))
	require.NoError(t, reg.Refresh())
	require.NoError(t, reg.Enable("unit"))

	require.NoError(t, os.WriteFile(file, []byte("v2"), 0o644))
	require.NoError(t, reg.Disable("unit"))
	require.NoError(t, reg.Enable("unit"))
	m, _ := reg.Module("unit")
	assert.Equal(t, xxhash.Sum64String("v1"), m.Digest)
}

func TestReloadPurgesPreloadedCandidate(t *testing.T) {
	r := newRig(t, "hotswap")
	pre := filepath.Join(r.host.InstallDir(), "unit", "lib")
	require.NoError(t, os.MkdirAll(pre, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pre, "main.py"), []byte("v1"), 0o644))
	require.NoError(t, r.host.Registry.Refresh())
	require.NoError(t, r.host.Registry.Enable("unit"))

	r.prefs.path = unitDir(t, "unit", "v2")
	require.NoError(t, r.o.Reload(context.Background()))

	m, ok := r.host.Module("unit/lib/main.py")
	require.True(t, ok)
	assert.Equal(t, xxhash.Sum64String("v2"), m.Digest)
}

func TestReloadRenamedUnitRemovesPrior(t *testing.T) {
	r := newRig(t, "hotswap")
	src := unitDir(t, "first", "v1")
	r.prefs.path = src
	require.NoError(t, r.o.Reload(context.Background()))

	require.NoError(t, os.WriteFile(filepath.Join(src, "manifest.yaml"), []byte("name: Second\n"), 0o644))
	require.NoError(t, r.o.Reload(context.Background()))

	assert.NoDirExists(t, filepath.Join(r.host.InstallDir(), "first"))
	assert.NotContains(t, r.host.List(), "first")
	assert.Empty(t, r.host.Modules("first"))
	assert.True(t, r.host.IsEnabled("second"))
	assert.Equal(t, "second", r.prefs.prior)
}

func TestReloadSingleFileUnit(t *testing.T) {
	r := newRig(t, "hotswap")
	dir := t.TempDir()
	file := filepath.Join(dir, "tool.py")
	require.NoError(t, os.WriteFile(file, []byte("# ---\n# name: Tool\n# ---\nprint(1)\n"), 0o644))
	r.prefs.path = file

	require.NoError(t, r.o.Reload(context.Background()))
	assert.FileExists(t, filepath.Join(r.host.InstallDir(), "tool.py"))
	assert.True(t, r.host.IsEnabled("tool"))

	require.NoError(t, r.o.Reload(context.Background()))
	assert.True(t, r.host.IsEnabled("tool"))
}

func TestReloadEmptyPathStopsMonitoring(t *testing.T) {
	r := newRig(t, "hotswap")

	err := r.o.Reload(context.Background())
	assert.ErrorIs(t, err, ErrEmptyPath)
	assert.Equal(t, 1, r.stop.calls)
	assert.Empty(t, r.host.calls)
	assert.Equal(t, []string{ResultEmptyPath}, r.obs.results)
}

func TestReloadInvalidManifestKeepsMonitoring(t *testing.T) {
	r := newRig(t, "hotswap")
	r.prefs.path = unitDir(t, "'   '", "v1")

	err := r.o.Reload(context.Background())
	assert.ErrorIs(t, err, ErrInvalidManifest)
	assert.Equal(t, 0, r.stop.calls)
	assert.Empty(t, r.host.calls)
	assert.Equal(t, "", r.prefs.declared)
}

func TestReloadRefusesSelf(t *testing.T) {
	r := newRig(t, "Hot Swap")
	r.prefs.path = unitDir(t, "hot swap", "v1")
	r.prefs.prior = "other"

	err := r.o.Reload(context.Background())
	assert.ErrorIs(t, err, ErrSelfReload)
	assert.Empty(t, r.host.calls, "no host operation may run")
	assert.Equal(t, "", r.prefs.path)
	assert.Equal(t, "other", r.prefs.prior)
	assert.Equal(t, 1, r.stop.calls)
	assert.Equal(t, []string{ResultSelfReload}, r.obs.results)
}

func TestReloadRejectsNamesOutsideInstallDir(t *testing.T) {
	for _, name := range []string{"..", "a/b", "../escape", ".", ".hidden"} {
		t.Run(name, func(t *testing.T) {
			r := newRig(t, "hotswap")
			parent := filepath.Dir(r.host.InstallDir())
			sentinel := filepath.Join(parent, "keep.txt")
			require.NoError(t, os.WriteFile(sentinel, []byte("x"), 0o644))
			r.prefs.path = unitDir(t, name, "v1")

			err := r.o.Reload(context.Background())
			assert.ErrorIs(t, err, ErrInvalidManifest)
			assert.Empty(t, r.host.calls)
			assert.Equal(t, "", r.prefs.prior)
			assert.Equal(t, 0, r.stop.calls)

			entries, err := os.ReadDir(parent)
			require.NoError(t, err)
			var names []string
			for _, e := range entries {
				names = append(names, e.Name())
			}
			assert.ElementsMatch(t, []string{"installed", "keep.txt"}, names)
			installed, err := os.ReadDir(r.host.InstallDir())
			require.NoError(t, err)
			assert.Empty(t, installed)
		})
	}
}

func TestReloadIgnoresUnusablePrior(t *testing.T) {
	r := newRig(t, "hotswap")
	parent := filepath.Dir(r.host.InstallDir())
	sentinel := filepath.Join(parent, "keep.txt")
	require.NoError(t, os.WriteFile(sentinel, []byte("x"), 0o644))
	r.prefs.prior = ".."
	r.prefs.path = unitDir(t, "unit", "v1")

	require.NoError(t, r.o.Reload(context.Background()))
	assert.FileExists(t, sentinel)
	assert.DirExists(t, r.host.InstallDir())
	assert.True(t, r.host.IsEnabled("unit"))
	assert.NotContains(t, r.host.calls, "disable:..")
	assert.NotContains(t, r.host.calls, "unregister:..")
	assert.Equal(t, "unit", r.prefs.prior)
}

func TestUninstallOnlyRemovesNamedUnit(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"foo.py", "foo.pyc", "foo.bar.py", "foobar.py", "other/main.py", "foo/main.py"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}

	assert.True(t, uninstall(dir, "foo"))
	assert.NoFileExists(t, filepath.Join(dir, "foo.py"))
	assert.NoFileExists(t, filepath.Join(dir, "foo.pyc"))
	assert.NoDirExists(t, filepath.Join(dir, "foo"))
	assert.FileExists(t, filepath.Join(dir, "foo.bar.py"))
	assert.FileExists(t, filepath.Join(dir, "foobar.py"))
	assert.DirExists(t, filepath.Join(dir, "other"))

	assert.False(t, uninstall(dir, "foo"), "already absent")
	assert.False(t, uninstall(filepath.Join(dir, "other"), ".."))
	assert.DirExists(t, filepath.Join(dir, "other"))
}

func TestReloadRenamedSingleFileKeepsSibling(t *testing.T) {
	r := newRig(t, "hotswap")
	sibling := filepath.Join(r.host.InstallDir(), "foo.bar.py")
	require.NoError(t, os.WriteFile(sibling, []byte("other unit"), 0o644))
	src := filepath.Join(t.TempDir(), "foo.py")
	require.NoError(t, os.WriteFile(src, []byte("# ---\n# name: foo\n# ---\n"), 0o644))
	r.prefs.path = src
	require.NoError(t, r.o.Reload(context.Background()))

	require.NoError(t, os.WriteFile(src, []byte("# ---\n# name: renamed\n# ---\n"), 0o644))
	require.NoError(t, r.o.Reload(context.Background()))

	assert.NoFileExists(t, filepath.Join(r.host.InstallDir(), "foo.py"))
	assert.FileExists(t, filepath.Join(r.host.InstallDir(), "renamed.py"))
	assert.FileExists(t, sibling)
	assert.Contains(t, r.host.List(), "foo.bar")
}

func TestReloadNeverDisablesSelf(t *testing.T) {
	r := newRig(t, "hotswap")
	require.NoError(t, os.MkdirAll(filepath.Join(r.host.InstallDir(), "hotswap"), 0o755))
	require.NoError(t, r.host.Registry.Refresh())
	r.prefs.prior = "hotswap"
	r.prefs.path = unitDir(t, "unit", "v1")

	require.NoError(t, r.o.Reload(context.Background()))
	assert.NotContains(t, r.host.calls, "disable:hotswap")
	assert.DirExists(t, filepath.Join(r.host.InstallDir(), "hotswap"))
}

func TestReloadHostFailureIsRecoverable(t *testing.T) {
	r := newRig(t, "hotswap")
	r.host.enableErr = errors.New("enable exploded")
	r.prefs.path = unitDir(t, "unit", "v1")

	err := r.o.Reload(context.Background())
	assert.ErrorIs(t, err, ErrHostOperation)
	assert.Equal(t, 0, r.stop.calls)
	assert.Equal(t, "unit", r.prefs.prior, "prior is persisted once installed")
	assert.Equal(t, 1, r.ch.CountMessage("Hotswap failed in the host. Continuing to monitor."))

	r.host.enableErr = nil
	require.NoError(t, r.o.Reload(context.Background()))
	assert.Equal(t, []string{ResultHostError, ResultSuccess}, r.obs.results)
}

type panicReader struct{}

func (panicReader) ReadName(context.Context, string) (string, error) { panic("loader crashed") }

func TestReloadRecoversPanics(t *testing.T) {
	r := newRig(t, "hotswap")
	r.o.reader = panicReader{}
	r.prefs.path = t.TempDir()

	var err error
	assert.NotPanics(t, func() { err = r.o.Reload(context.Background()) })
	assert.ErrorIs(t, err, ErrUnexpected)
	assert.Equal(t, 0, r.stop.calls)
	assert.Equal(t, []string{ResultUnexpected}, r.obs.results)
	assert.NoError(t, r.o.Callback()())
}

func TestTrackerTakeForgets(t *testing.T) {
	tr := NewTracker()
	tr.Record("a", []string{"a/x", "a/y"})
	tr.Record("b", nil)
	assert.Equal(t, []string{"a/x", "a/y"}, tr.Take("a"))
	assert.Empty(t, tr.Take("a"))
	assert.Empty(t, tr.Owned("b"))
}
