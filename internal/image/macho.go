package image

import (
	"bytes"
	"debug/macho"
	"encoding/binary"
	"fmt"

	"github.com/c3rb3ru5d3d53c/binlex-go/internal/arch"
)

func isMachO(raw []byte) bool {
	if len(raw) < 4 {
		return false
	}
	switch binary.LittleEndian.Uint32(raw) {
	case macho.Magic32, macho.Magic64, macho.MagicFat:
		return true
	}
	switch binary.BigEndian.Uint32(raw) {
	case macho.Magic32, macho.Magic64, macho.MagicFat:
		return true
	}
	return false
}

// machoVMProtExecute is VM_PROT_EXECUTE from <mach/vm_prot.h>; debug/macho
// does not export it.
const machoVMProtExecute = 0x4

// loadCmdMain is LC_MAIN (0x80000028); debug/macho has no typed
// representation of it, so the entrypoint is recovered by hand from the raw
// load-command bytes.
const loadCmdMain = 0x80000028

func loadMachO(raw []byte) (rawLoad, error) {
	f, err := selectMachOFile(raw)
	if err != nil {
		return rawLoad{}, err
	}
	defer f.Close()

	var a arch.Architecture
	switch f.Cpu {
	case macho.CpuAmd64:
		a = arch.AMD64
	case macho.Cpu386:
		a = arch.I386
	default:
		return rawLoad{}, fmt.Errorf("%w: macho: unsupported cpu %s", ErrInvalidFormat, f.Cpu)
	}

	var (
		base   uint64 = ^uint64(0)
		maxEnd uint64
		ranges []Range
		text   *macho.Segment
	)
	segs := f.Segments()
	type loadable struct {
		vaddr, end uint64
		data       []byte
		exec       bool
	}
	var materialized []loadable
	for _, seg := range segs {
		if seg.Name == "__TEXT" {
			text = seg
		}
		if seg.Memsz == 0 {
			continue
		}
		data, err := seg.Data()
		if err != nil {
			data = nil
		}
		end := seg.Addr + seg.Memsz
		materialized = append(materialized, loadable{
			vaddr: seg.Addr,
			end:   end,
			data:  data,
			exec:  seg.Prot&machoVMProtExecute != 0,
		})
		if seg.Addr < base {
			base = seg.Addr
		}
		if end > maxEnd {
			maxEnd = end
		}
	}
	if len(materialized) == 0 {
		return rawLoad{}, fmt.Errorf("%w: macho: no segments", ErrInvalidFormat)
	}

	buf := make([]byte, maxEnd-base)
	for _, s := range materialized {
		off := int(s.vaddr - base)
		buf = growBuffer(buf, off, len(s.data))
		copy(buf[off:], s.data)
		ranges = append(ranges, Range{Start: s.vaddr, End: s.end, Executable: s.exec})
	}

	entries := machoEntrypoints(f, text)
	for _, sym := range machoExportedFunctions(f) {
		entries = append(entries, sym)
	}

	return rawLoad{
		buf:     buf,
		base:    base,
		ranges:  ranges,
		entries: entries,
		arch:    a,
	}, nil
}

// selectMachOFile opens raw as a single-architecture Mach-O file, or, for a
// fat/universal binary, picks the one architecture slice this tool can
// disassemble. A fat binary's entrypoints() are scoped to that chosen slice
// rather than unioned across every architecture it carries (spec.md §4.1's
// "slice-relevant entries").
func selectMachOFile(raw []byte) (*macho.File, error) {
	if f, err := macho.NewFile(bytes.NewReader(raw)); err == nil {
		return f, nil
	}
	fat, err := macho.NewFatFile(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: macho: %v", ErrInvalidFormat, err)
	}
	for _, a := range fat.Arches {
		switch a.Cpu {
		case macho.CpuAmd64, macho.Cpu386:
			return a.File, nil
		}
	}
	return nil, fmt.Errorf("%w: macho: no supported architecture slice", ErrInvalidFormat)
}

// machoExportedFunctions returns the virtual addresses of external, defined
// symbols in the symbol table, contributing to entrypoints() the way
// exported PE/ELF functions do. debug/macho does not parse the export trie,
// so the classic N_EXT/N_SECT symbol-table convention is walked by hand
// instead, mirroring elfExportedFunctions.
func machoExportedFunctions(f *macho.File) []uint64 {
	if f.Symtab == nil {
		return nil
	}
	const (
		nExt  = 0x01 // N_EXT: externally visible
		nType = 0x0e // N_TYPE mask
		nSect = 0x0e // N_SECT: defined in a section
	)
	var out []uint64
	for _, sym := range f.Symtab.Syms {
		if sym.Type&nExt == 0 || sym.Type&nType != nSect {
			continue
		}
		if sym.Value != 0 {
			out = append(out, sym.Value)
		}
	}
	return out
}

// machoEntrypoints recovers the LC_MAIN entry offset (file-offset relative)
// and translates it into a virtual address using the __TEXT segment's
// file-offset-to-vmaddr mapping.
func machoEntrypoints(f *macho.File, text *macho.Segment) []uint64 {
	for _, l := range f.Loads {
		raw := l.Raw()
		if len(raw) < 16 {
			continue
		}
		cmd := f.ByteOrder.Uint32(raw[0:4])
		if cmd != loadCmdMain {
			continue
		}
		entryOff := f.ByteOrder.Uint64(raw[8:16])
		if text == nil {
			return []uint64{entryOff}
		}
		return []uint64{text.Addr + (entryOff - text.Offset)}
	}
	return nil
}
