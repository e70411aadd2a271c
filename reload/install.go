package reload

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// install copies the unit at src into installDir under name and returns the destination.
// A single file keeps its extension; a directory is copied as a tree, overwriting existing files.
func install(src, installDir, name string) (string, error) {
	if !installable(name) {
		return "", fmt.Errorf("%q is not a valid unit name", name)
	}
	info, err := os.Stat(src)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		dst := filepath.Join(installDir, name+filepath.Ext(src))
		return dst, copyFile(src, dst, info)
	}
	dst := filepath.Join(installDir, name)
	return dst, copyTree(src, dst)
}

// uninstall removes the entries the host maps to unit name: a directory called
// name, or files whose base name without extension is name. It reports whether
// anything was removed; missing files are not an error.
func uninstall(installDir, name string) bool {
	if !installable(name) {
		return false
	}
	entries, err := os.ReadDir(installDir)
	if err != nil {
		return false
	}
	removed := false
	for _, e := range entries {
		base := e.Name()
		target := filepath.Join(installDir, base)
		switch {
		case e.IsDir() && base == name:
			if os.RemoveAll(target) == nil {
				removed = true
			}
		case !e.IsDir() && strings.TrimSuffix(base, filepath.Ext(base)) == name:
			if os.Remove(target) == nil {
				removed = true
			}
		}
	}
	return removed
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(p string, e fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		info, err := e.Info()
		if err != nil {
			return err
		}
		if e.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyFile(p, target, info)
	})
}

// copyFile copies content, permissions and modification time.
func copyFile(src, dst string, info fs.FileInfo) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil && !errors.Is(err, fs.ErrPermission) {
		return err
	}
	return nil
}
