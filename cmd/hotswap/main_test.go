package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCommand(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"normalize", " My", "Add-On "}, &out))
	assert.Equal(t, "my-add-on\n", out.String())

	assert.Error(t, run([]string{"normalize", "   "}, &out))
}

func TestBundleCommand(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "main.py"), []byte("x"), 0o644))
	outDir := t.TempDir()

	var out bytes.Buffer
	require.NoError(t, run([]string{"bundle", "-n", "pkg", "-o", outDir, src}, &out))
	assert.Equal(t, filepath.Join(outDir, "pkg.zip"), strings.TrimSpace(out.String()))

	err := run([]string{"bundle", "-n", "pkg", "-o", outDir, src}, &out)
	assert.Error(t, err, "existing archive needs --overwrite")
	require.NoError(t, run([]string{"bundle", "--overwrite", "-n", "pkg", "-o", outDir, src}, &out))
}

func TestReloadCommand(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "unit")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "manifest.yaml"), []byte("name: CLI Unit\n"), 0o644))
	cfg := filepath.Join(root, "prefs.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(fmt.Sprintf(
		"monitor:\n  path: %q\nhost:\n  installDir: %q\nlog:\n  output: %q\n",
		src, filepath.Join(root, "units"), filepath.Join(root, "hotswap.log"))), 0o644))

	var out bytes.Buffer
	require.NoError(t, run([]string{"--no-color", "-f", cfg, "reload"}, &out))
	assert.Contains(t, out.String(), "Hotswap successfully completed.")
	assert.DirExists(t, filepath.Join(root, "units", "cli-unit"))
}

func TestReloadCommandWithoutPath(t *testing.T) {
	root := t.TempDir()
	cfg := filepath.Join(root, "prefs.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(fmt.Sprintf(
		"host:\n  installDir: %q\nlog:\n  output: %q\n", filepath.Join(root, "units"), filepath.Join(root, "hotswap.log"))), 0o644))

	var out bytes.Buffer
	err := run([]string{"-q", "-f", cfg, "reload"}, &out)
	assert.Error(t, err)
	assert.Empty(t, out.String())
}

func TestHelp(t *testing.T) {
	var out bytes.Buffer
	err := run([]string{"--help"}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watch")
}
