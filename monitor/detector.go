package monitor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// ScanResult describes what a single scan observed.
type ScanResult struct {
	Changed      bool     // some file is newer than the last tracked update
	DeletedCount int      // files missing compared to the previous scan
	UpdatedFiles []string // files newer than the last tracked update, in walk order
}

// Triggered reports whether subscribers should be notified.
func (r ScanResult) Triggered() bool {
	return r.Changed || r.DeletedCount > 0
}

// Detector tracks the newest modification time and the file count under a path.
// It is not safe for concurrent use; Monitor serializes access.
type Detector struct {
	lastChange time.Time
	lastCount  int
}

func NewDetector() *Detector {
	return &Detector{}
}

// Seed resets the tracked timestamp and records the true file count of path.
func (d *Detector) Seed(path string) error {
	n, err := countFiles(path)
	if err != nil {
		return err
	}
	d.lastChange = time.Time{}
	d.lastCount = n
	return nil
}

// Reset clears the tracked timestamp. The file count is kept.
func (d *Detector) Reset() {
	d.lastChange = time.Time{}
}

func (d *Detector) LastChange() time.Time { return d.lastChange }

func (d *Detector) LastFileCount() int { return d.lastCount }

// ScanAndUpdate inspects path and updates the tracked state.
func (d *Detector) ScanAndUpdate(path string) (ScanResult, error) {
	var res ScanResult

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return res, fmt.Errorf("%w: %s", ErrPathNotFound, path)
		}
		return res, fmt.Errorf("stat %s: %w", path, err)
	}

	latest := d.lastChange
	count := 0
	if !info.IsDir() {
		count = 1
		if info.ModTime().After(d.lastChange) {
			latest = info.ModTime()
			res.UpdatedFiles = append(res.UpdatedFiles, path)
		}
	} else {
		err = filepath.WalkDir(path, func(p string, e fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				// 扫描过程中被删除的条目直接跳过
				if errors.Is(walkErr, fs.ErrNotExist) {
					return nil
				}
				return walkErr
			}
			if e.IsDir() {
				return nil
			}
			fi, err := e.Info()
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			count++
			if fi.ModTime().After(d.lastChange) {
				res.UpdatedFiles = append(res.UpdatedFiles, p)
				if fi.ModTime().After(latest) {
					latest = fi.ModTime()
				}
			}
			return nil
		})
		if err != nil {
			return ScanResult{}, fmt.Errorf("scan %s: %w", path, err)
		}
	}

	if latest.After(d.lastChange) {
		res.Changed = true
		d.lastChange = latest
	}
	if count < d.lastCount {
		res.DeletedCount = d.lastCount - count
	}
	d.lastCount = count
	return res, nil
}

// countFiles returns the number of non-directory entries under path.
func countFiles(path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrPathNotFound, path)
		}
		return 0, err
	}
	if !info.IsDir() {
		return 1, nil
	}
	n := 0
	err = filepath.WalkDir(path, func(_ string, e fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if !e.IsDir() {
			n++
		}
		return nil
	})
	return n, err
}
