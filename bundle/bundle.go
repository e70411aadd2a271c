// Package bundle packages a unit into a distributable zip archive.
package bundle

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
)

// MaxNameLength bounds the archive name, extension excluded.
const MaxNameLength = 137

// DefaultExcludes are cache artifacts never worth shipping.
var DefaultExcludes = []string{"__pycache__", "*.pyc"}

var (
	ErrNoSources     = errors.New("no sources to bundle")
	ErrSourceMissing = errors.New("source does not exist")
	ErrOutDir        = errors.New("output folder must be an existing directory")
	ErrName          = errors.New("invalid archive name")
	ErrExists        = errors.New("archive already exists")
)

type Options struct {
	Overwrite bool
	// Excludes are base-name glob patterns; nil means DefaultExcludes.
	Excludes []string
}

// Bundle zips sources into <outDir>/<name>.zip under a single top-level folder
// named name. Directory sources contribute their contents, file sources
// themselves. It returns the archive path.
func Bundle(sources []string, outDir, name string, opts Options) (string, error) {
	if len(sources) == 0 {
		return "", ErrNoSources
	}
	for _, src := range sources {
		if _, err := os.Stat(src); err != nil {
			return "", fmt.Errorf("%w: %s", ErrSourceMissing, src)
		}
	}
	if info, err := os.Stat(outDir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrOutDir, outDir)
	}
	if err := validateName(name); err != nil {
		return "", err
	}
	excludes := opts.Excludes
	if excludes == nil {
		excludes = DefaultExcludes
	}

	dst := filepath.Join(outDir, name+".zip")
	if _, err := os.Stat(dst); err == nil && !opts.Overwrite {
		return "", fmt.Errorf("%w: %s", ErrExists, dst)
	}

	w := &writer{root: name, excludes: excludes, entries: make(map[string]entry)}
	for _, src := range sources {
		if err := w.collect(src); err != nil {
			return "", err
		}
	}

	tmp, err := os.CreateTemp(outDir, "."+name+".*.zip")
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	defer os.Remove(tmp.Name())

	zw := zip.NewWriter(tmp)
	w.zw = zw
	if err := w.flush(); err != nil {
		zw.Close()
		tmp.Close()
		return "", err
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("finish archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("finish archive: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("finish archive: %w", err)
	}
	return dst, nil
}

func validateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: empty", ErrName)
	case len(name) > MaxNameLength:
		return fmt.Errorf("%w: longer than %d characters", ErrName, MaxNameLength)
	case strings.ContainsAny(name, `/\`) || name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrName, name)
	}
	return nil
}

type entry struct {
	src  string
	info fs.FileInfo
}

type writer struct {
	zw       *zip.Writer
	root     string
	excludes []string
	entries  map[string]entry // 归档内相对路径 -> 源文件，后出现的覆盖先出现的
}

func (w *writer) excluded(base string) bool {
	for _, pattern := range w.excludes {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

func (w *writer) collect(src string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		if w.excluded(info.Name()) {
			return nil
		}
		w.entries[info.Name()] = entry{src: src, info: info}
		return nil
	}
	return filepath.WalkDir(src, func(p string, e fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p == src {
			return nil
		}
		if w.excluded(e.Name()) {
			if e.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if e.IsDir() || !e.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		fi, err := e.Info()
		if err != nil {
			return err
		}
		w.entries[filepath.ToSlash(rel)] = entry{src: p, info: fi}
		return nil
	})
}

func (w *writer) flush() error {
	names := make([]string, 0, len(w.entries))
	for rel := range w.entries {
		names = append(names, rel)
	}
	sort.Strings(names)
	for _, rel := range names {
		e := w.entries[rel]
		if err := w.addFile(e.src, rel, e.info); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) addFile(src, rel string, info fs.FileInfo) error {
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = path.Join(w.root, rel)
	hdr.Method = zip.Deflate

	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	out, err := w.zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("add %s: %w", rel, err)
	}
	if _, err := io.Copy(out, f); err != nil {
		return fmt.Errorf("add %s: %w", rel, err)
	}
	return nil
}
