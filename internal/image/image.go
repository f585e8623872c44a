// Package image builds a normalized virtual-address memory view ("Image")
// out of a PE, ELF, or Mach-O file: a flat byte buffer where offset i
// corresponds to virtual address Base+i, plus the executable ranges and
// entrypoints needed to seed disassembly.
package image

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/c3rb3ru5d3d53c/binlex-go/internal/arch"
	"github.com/c3rb3ru5d3d53c/binlex-go/internal/config"
	"github.com/c3rb3ru5d3d53c/binlex-go/internal/hashing"
)

// ErrInvalidFormat is returned when the input's magic bytes don't match a
// supported container format.
var ErrInvalidFormat = errors.New("image: unsupported or malformed binary format")

const pageSize = 0x1000

// Range is a half-open virtual-address interval, [Start, End).
type Range struct {
	Start      uint64
	End        uint64
	Executable bool
}

// FileSummary is the file-level hash/size attribute emitted on every
// genome's "file" attribute (spec.md §4.7).
type FileSummary struct {
	SHA256 string
	TLSH   string
	Size   int
}

// Image is a read-only, flattened virtual-address view of one input binary.
// It is built once and shared without copying across every worker that
// disassembles from it.
type Image struct {
	Bytes   []byte
	Arch    arch.Architecture
	Base    uint64
	Ranges  []Range
	Entries []uint64

	Summary FileSummary

	cache *cacheHandle // non-nil when backed by a cache-file mmap
}

// Close releases any mmap backing the Image. Safe to call on an Image that
// was never cached.
func (img *Image) Close() error {
	if img.cache != nil {
		return img.cache.Close()
	}
	return nil
}

// Translate converts a virtual address to a byte offset into img.Bytes.
func (img *Image) Translate(va uint64) (int, bool) {
	if va < img.Base {
		return 0, false
	}
	off := va - img.Base
	if off >= uint64(len(img.Bytes)) {
		return 0, false
	}
	return int(off), true
}

// InRange reports whether va falls within any recorded executable range.
func (img *Image) InRange(va uint64) bool {
	i := sort.Search(len(img.Ranges), func(i int) bool { return img.Ranges[i].End > va })
	return i < len(img.Ranges) && img.Ranges[i].Executable && va >= img.Ranges[i].Start
}

// Entrypoints returns the union of primary entry and exported function VAs
// (spec.md §4.1).
func (img *Image) Entrypoints() []uint64 { return img.Entries }

// ExecutableRanges returns the ordered, disjoint list of executable
// [start,end) ranges (spec.md §4.1).
func (img *Image) ExecutableRanges() []Range {
	out := make([]Range, 0, len(img.Ranges))
	for _, r := range img.Ranges {
		if r.Executable {
			out = append(out, r)
		}
	}
	return out
}

type rawLoad struct {
	buf     []byte
	base    uint64
	ranges  []Range
	entries []uint64
	arch    arch.Architecture
}

// Load detects the input's container format, flattens its loadable segments
// into a page-aligned virtual-address buffer, and returns an Image. When
// cfg's mmap cache is enabled, a previous build for the same file's SHA-256
// supplies the image bytes from the cache file. Headers are parsed and the
// in-memory buffer is built on every load, cache hit or not, because the
// cache file holds only the raw image bytes.
func Load(path string, cfg *config.Config) (*Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("image: read %s: %w", path, err)
	}
	return FromBytes(raw, cfg)
}

// FromBytes runs the same format-detection, flattening, and cache logic as
// Load against an already-read buffer, letting a caller that batches
// multiple inputs (SPEC_FULL.md §10) hash the file once and consult its own
// in-process dedup cache before paying to parse headers again.
func FromBytes(raw []byte, cfg *config.Config) (*Image, error) {
	sum := hashing.SHA256(raw)

	var cache *cacheHandle
	var err error
	if cfg.MMap.Cache.Enabled && cfg.MMap.Directory != "" {
		cache, err = openCache(cfg.MMap.Directory, sum)
		if err != nil {
			// Cache I/O errors degrade to in-memory build (spec.md §7).
			cache = nil
		}
	}

	load, err := parseHeaders(raw)
	if err != nil {
		return nil, err
	}

	img := &Image{
		Arch:    load.arch,
		Base:    load.base,
		Ranges:  load.ranges,
		Entries: dedupeSorted(load.entries),
		Summary: FileSummary{
			SHA256: sum,
			Size:   len(raw),
		},
	}
	if cfg.Formats.File.Hashing.TLSH.Enabled && len(raw) >= cfg.Formats.File.Hashing.TLSH.MinimumByteSize {
		img.Summary.TLSH = hashing.TLSH(raw)
	}

	if cache != nil {
		if cache.hit {
			img.Bytes = cache.bytes
			img.cache = cache
			return img, nil
		}
		if err := cache.write(load.buf); err != nil {
			// Degrade to the in-memory buffer already built above.
			img.Bytes = load.buf
			return img, nil
		}
		img.Bytes = cache.bytes
		img.cache = cache
		return img, nil
	}

	img.Bytes = load.buf
	return img, nil
}

// parseHeaders dispatches to the format-specific loader based on magic
// bytes, then pads the resulting buffer's length up to the page size as
// required by spec.md §4.1.
func parseHeaders(raw []byte) (rawLoad, error) {
	var (
		load rawLoad
		err  error
	)
	switch {
	case bytes.HasPrefix(raw, []byte("MZ")):
		load, err = loadPE(raw)
	case bytes.HasPrefix(raw, []byte("\x7fELF")):
		load, err = loadELF(raw)
	case isMachO(raw):
		load, err = loadMachO(raw)
	default:
		return rawLoad{}, ErrInvalidFormat
	}
	if err != nil {
		return rawLoad{}, err
	}
	if len(load.buf)%pageSize != 0 {
		padded := make([]byte, alignUp(uint64(len(load.buf)), pageSize))
		copy(padded, load.buf)
		load.buf = padded
	}
	sort.Slice(load.ranges, func(i, j int) bool { return load.ranges[i].Start < load.ranges[j].Start })
	return load, nil
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

func dedupeSorted(in []uint64) []uint64 {
	if len(in) == 0 {
		return nil
	}
	sorted := append([]uint64(nil), in...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	out := sorted[:1]
	for _, v := range sorted[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// growBuffer grows dst, if needed, so that writing length bytes at offset
// never panics, matching the "zero-initialized buffer sized to the maximum
// referenced virtual address" contract of spec.md §4.1.
func growBuffer(dst []byte, offset, length int) []byte {
	need := offset + length
	if need <= len(dst) {
		return dst
	}
	grown := make([]byte, need)
	copy(grown, dst)
	return grown
}
