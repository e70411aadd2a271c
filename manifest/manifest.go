// Package manifest reads a unit's declared name without loading the unit into this process.
package manifest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultTimeout bounds a single manifest read.
const DefaultTimeout = 5 * time.Second

// EntryFiles are looked up, in order, inside a directory unit.
var EntryFiles = []string{"manifest.yaml", "manifest.yml", "manifest.json"}

var (
	ErrNotFound    = errors.New("manifest not found")
	ErrMissingName = errors.New("manifest has no name")
	ErrTimeout     = errors.New("manifest read timed out")
)

// Manifest is the metadata a unit declares about itself.
type Manifest struct {
	Name        string `yaml:"name" json:"name"`
	Version     string `yaml:"version" json:"version"`
	Description string `yaml:"description" json:"description"`
	Author      string `yaml:"author" json:"author"`
}

// Reader extracts a unit's declared name from a file or directory.
type Reader interface {
	ReadName(ctx context.Context, path string) (string, error)
}

// Parse decodes YAML or JSON metadata and requires a non-blank name.
func Parse(raw []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("parse manifest: %w", err)
	}
	if strings.TrimSpace(m.Name) == "" {
		return m, ErrMissingName
	}
	return m, nil
}

// FileReader parses manifests from disk in a separate goroutine so a hung or
// panicking read cannot block or crash the caller.
type FileReader struct {
	Timeout time.Duration
}

func (r FileReader) ReadName(ctx context.Context, path string) (string, error) {
	m, err := r.Read(ctx, path)
	if err != nil {
		return "", err
	}
	return m.Name, nil
}

// Read returns the full manifest of the unit at path.
func (r FileReader) Read(ctx context.Context, path string) (Manifest, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		m   Manifest
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- result{err: fmt.Errorf("read manifest %s: panic: %v", path, rec)}
			}
		}()
		m, err := readFromDisk(path)
		done <- result{m: m, err: err}
	}()

	select {
	case res := <-done:
		return res.m, res.err
	case <-ctx.Done():
		return Manifest{}, fmt.Errorf("%w: %s", ErrTimeout, path)
	}
}

func readFromDisk(path string) (Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if info.IsDir() {
		for _, name := range EntryFiles {
			raw, err := os.ReadFile(filepath.Join(path, name))
			if err == nil {
				return Parse(raw)
			}
		}
		return Manifest{}, fmt.Errorf("%w: %s has none of %s", ErrNotFound, path, strings.Join(EntryFiles, ", "))
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return Parse(raw)
	}
	front, ok := frontMatter(raw)
	if !ok {
		return Manifest{}, fmt.Errorf("%w: %s has no front matter", ErrNotFound, path)
	}
	return Parse(front)
}

// frontMatter returns the block between a leading "---" line and the next "---" line.
// Lines may carry a comment prefix ("#", "//") so scripts can embed the block.
func frontMatter(raw []byte) ([]byte, bool) {
	lines := bytes.Split(raw, []byte("\n"))
	prefix := ""
	start := -1
	for i, line := range lines {
		text := strings.TrimSpace(string(line))
		if text == "" {
			continue
		}
		for _, p := range []string{"", "#", "//"} {
			if strings.TrimSpace(strings.TrimPrefix(text, p)) == "---" && strings.HasPrefix(text, p) {
				prefix = p
				start = i
				break
			}
		}
		break
	}
	if start < 0 {
		return nil, false
	}
	var block []string
	for _, line := range lines[start+1:] {
		text := strings.TrimRight(string(line), "\r")
		trimmed := strings.TrimSpace(text)
		if strings.TrimSpace(strings.TrimPrefix(trimmed, prefix)) == "---" {
			return []byte(strings.Join(block, "\n")), true
		}
		if prefix != "" {
			text = strings.TrimPrefix(strings.TrimSpace(text), prefix)
			text = strings.TrimPrefix(text, " ")
		}
		block = append(block, text)
	}
	return nil, false
}
