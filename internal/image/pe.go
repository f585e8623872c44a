package image

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"fmt"

	"github.com/c3rb3ru5d3d53c/binlex-go/internal/arch"
)

func loadPE(raw []byte) (rawLoad, error) {
	f, err := pe.NewFile(bytes.NewReader(raw))
	if err != nil {
		return rawLoad{}, fmt.Errorf("%w: pe: %v", ErrInvalidFormat, err)
	}
	defer f.Close()

	var (
		a         arch.Architecture
		imageBase uint64
		entryRVA  uint32
		exportDir pe.DataDirectory
	)
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader64:
		imageBase = oh.ImageBase
		entryRVA = oh.AddressOfEntryPoint
		a = arch.AMD64
		exportDir = oh.DataDirectory[imageDirectoryEntryExport]
	case *pe.OptionalHeader32:
		imageBase = uint64(oh.ImageBase)
		entryRVA = oh.AddressOfEntryPoint
		a = arch.I386
		exportDir = oh.DataDirectory[imageDirectoryEntryExport]
	default:
		return rawLoad{}, fmt.Errorf("%w: pe: unsupported machine %#x", ErrInvalidFormat, f.Machine)
	}

	var maxEnd uint64
	for _, s := range f.Sections {
		end := uint64(s.VirtualAddress) + uint64(s.VirtualSize)
		if end > maxEnd {
			maxEnd = end
		}
	}

	buf := make([]byte, maxEnd)
	var ranges []Range
	for _, s := range f.Sections {
		if s.VirtualSize == 0 {
			continue
		}
		data, err := s.Data()
		if err != nil {
			// Non-loadable / BSS-style section: leave zero-filled.
			data = nil
		}
		buf = growBuffer(buf, int(s.VirtualAddress), len(data))
		copy(buf[s.VirtualAddress:], data)

		const imageScnMemExecute = 0x20000000
		ranges = append(ranges, Range{
			Start:      imageBase + uint64(s.VirtualAddress),
			End:        imageBase + uint64(s.VirtualAddress) + uint64(s.VirtualSize),
			Executable: s.Characteristics&imageScnMemExecute != 0,
		})
	}

	entries := []uint64{imageBase + uint64(entryRVA)}
	for _, exp := range peExports(f, raw, imageBase, exportDir) {
		entries = append(entries, exp)
	}

	return rawLoad{
		buf:     buf,
		base:    imageBase,
		ranges:  ranges,
		entries: entries,
		arch:    a,
	}, nil
}

// imageDirectoryEntryExport is the index of IMAGE_DIRECTORY_ENTRY_EXPORT
// within an optional header's DataDirectory array.
const imageDirectoryEntryExport = 0

// peExports returns the virtual addresses of the file's exported functions,
// contributing to the entrypoints() union in spec.md §4.1. debug/pe does not
// parse the export directory itself, so IMAGE_EXPORT_DIRECTORY is walked by
// hand here, mirroring the hand-rolled symbol walk in elfExportedFunctions.
func peExports(f *pe.File, raw []byte, imageBase uint64, dir pe.DataDirectory) []uint64 {
	if dir.VirtualAddress == 0 || dir.Size == 0 {
		return nil
	}
	off, ok := rvaToFileOffset(f, dir.VirtualAddress)
	if !ok || off+40 > len(raw) {
		return nil
	}

	numberOfFunctions := binary.LittleEndian.Uint32(raw[off+20:])
	addressOfFunctions := binary.LittleEndian.Uint32(raw[off+28:])

	funcsOff, ok := rvaToFileOffset(f, addressOfFunctions)
	if !ok {
		return nil
	}

	exportStart := dir.VirtualAddress
	exportEnd := dir.VirtualAddress + dir.Size

	var out []uint64
	for i := uint32(0); i < numberOfFunctions; i++ {
		entryOff := funcsOff + int(i)*4
		if entryOff+4 > len(raw) {
			break
		}
		rva := binary.LittleEndian.Uint32(raw[entryOff:])
		if rva == 0 {
			continue
		}
		// A function RVA that falls inside the export directory itself is a
		// forwarder string ("OTHERDLL.Func"), not code — skip it.
		if rva >= exportStart && rva < exportEnd {
			continue
		}
		out = append(out, imageBase+uint64(rva))
	}
	return out
}

// rvaToFileOffset maps a relative virtual address to its offset within the
// raw file bytes by locating the section that contains it.
func rvaToFileOffset(f *pe.File, rva uint32) (int, bool) {
	for _, s := range f.Sections {
		start := s.VirtualAddress
		end := start + s.VirtualSize
		if rva >= start && rva < end {
			return int(s.Offset) + int(rva-start), true
		}
	}
	return 0, false
}
