package manifest

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileReaderDirectory(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "manifest.yaml"), "name: My Add-On\nversion: 1.2.0\n")

	m, err := FileReader{}.Read(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "My Add-On", m.Name)
	assert.Equal(t, "1.2.0", m.Version)
}

func TestFileReaderDirectoryJSON(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "manifest.json"), `{"name": "Json Unit", "author": "me"}`)

	name, err := FileReader{}.ReadName(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "Json Unit", name)
}

func TestFileReaderSingleYAMLFile(t *testing.T) {
	path := write(t, filepath.Join(t.TempDir(), "tool.yaml"), "name: Tool\n")
	name, err := FileReader{}.ReadName(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Tool", name)
}

func TestFileReaderFrontMatter(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"plain", "---\nname: Plain Unit\n---\nbody\n", "Plain Unit"},
		{"hash comments", "# ---\n# name: Script Unit\n# version: 2\n# ---\nprint('hi')\n", "Script Unit"},
		{"slash comments", "\n// ---\n// name: Go Unit\n// ---\npackage main\n", "Go Unit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := write(t, filepath.Join(t.TempDir(), "unit.txt"), tt.content)
			name, err := FileReader{}.ReadName(context.Background(), path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, name)
		})
	}
}

func TestFileReaderErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := FileReader{}.ReadName(context.Background(), filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = FileReader{}.ReadName(context.Background(), dir)
	assert.ErrorIs(t, err, ErrNotFound, "directory without entry file")

	blank := write(t, filepath.Join(dir, "blank.yaml"), "name: '   '\n")
	_, err = FileReader{}.ReadName(context.Background(), blank)
	assert.ErrorIs(t, err, ErrMissingName)

	noName := write(t, filepath.Join(dir, "noname.yaml"), "version: 1\n")
	_, err = FileReader{}.ReadName(context.Background(), noName)
	assert.ErrorIs(t, err, ErrMissingName)

	broken := write(t, filepath.Join(dir, "broken.yaml"), "name: [unterminated\n")
	_, err = FileReader{}.ReadName(context.Background(), broken)
	assert.Error(t, err)

	script := write(t, filepath.Join(dir, "script.sh"), "echo hi\n")
	_, err = FileReader{}.ReadName(context.Background(), script)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExecReader(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	r := ExecReader{Command: []string{"sh", "-c", `echo "name: From $0"`}}
	name, err := r.ReadName(context.Background(), "Subprocess")
	require.NoError(t, err)
	assert.Equal(t, "From Subprocess", name)
}

func TestExecReaderTimeout(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	r := ExecReader{Command: []string{"sh", "-c", "exec sleep 5"}, Timeout: 50 * time.Millisecond}
	start := time.Now()
	_, err := r.ReadName(context.Background(), "ignored")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestExecReaderFailure(t *testing.T) {
	if _, err := exec.LookPath("false"); err != nil {
		t.Skip("false not available")
	}
	_, err := ExecReader{Command: []string{"false"}}.ReadName(context.Background(), "x")
	assert.Error(t, err)

	_, err = ExecReader{}.ReadName(context.Background(), "x")
	assert.Error(t, err)
}
