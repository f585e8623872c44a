package image

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"
)

// cacheHandle wraps the optional on-disk image cache described in
// spec.md §4.1: a mmap-backed file named by the input's SHA-256 under
// mmap.directory. Concurrent builds for the same input converge via a
// temp-file-plus-rename, so a reader never observes a partially-written
// cache file.
type cacheHandle struct {
	path  string
	file  *os.File
	mm    mmap.MMap
	bytes []byte
	hit   bool
}

func openCache(dir, sha256 string) (*cacheHandle, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("image: create cache dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, sha256)

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return &cacheHandle{path: path}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("image: open cache file %s: %w", path, err)
	}

	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("image: mmap cache file %s: %w", path, err)
	}
	return &cacheHandle{path: path, file: f, mm: mm, bytes: []byte(mm), hit: true}, nil
}

// write atomically publishes buf as this cache entry's contents: it writes
// to a sibling temp file and renames it into place, so a concurrent reader
// either sees no file or a complete one, never a partial write.
func (c *cacheHandle) write(buf []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(c.path), filepath.Base(c.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("image: create cache temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("image: write cache temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("image: close cache temp file: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("image: publish cache file %s: %w", c.path, err)
	}

	f, err := os.Open(c.path)
	if err != nil {
		return fmt.Errorf("image: reopen cache file %s: %w", c.path, err)
	}
	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return fmt.Errorf("image: mmap cache file %s: %w", c.path, err)
	}
	c.file, c.mm, c.bytes = f, mm, []byte(mm)
	return nil
}

// Close unmaps and closes the backing cache file, if any.
func (c *cacheHandle) Close() error {
	if c.mm != nil {
		if err := c.mm.Unmap(); err != nil {
			return err
		}
	}
	if c.file != nil {
		return c.file.Close()
	}
	return nil
}
