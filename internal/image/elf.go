package image

import (
	"bytes"
	"debug/elf"
	"fmt"

	"github.com/c3rb3ru5d3d53c/binlex-go/internal/arch"
)

func loadELF(raw []byte) (rawLoad, error) {
	f, err := elf.NewFile(bytes.NewReader(raw))
	if err != nil {
		return rawLoad{}, fmt.Errorf("%w: elf: %v", ErrInvalidFormat, err)
	}
	defer f.Close()

	var a arch.Architecture
	switch f.Machine {
	case elf.EM_X86_64:
		a = arch.AMD64
	case elf.EM_386:
		a = arch.I386
	default:
		return rawLoad{}, fmt.Errorf("%w: elf: unsupported machine %s", ErrInvalidFormat, f.Machine)
	}

	var base uint64 = ^uint64(0)
	var maxEnd uint64
	type loadable struct {
		vaddr, end uint64
		data       []byte
		exec       bool
	}
	var segs []loadable
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		data := make([]byte, p.Filesz)
		if p.Filesz > 0 {
			if _, err := p.ReadAt(data, 0); err != nil {
				return rawLoad{}, fmt.Errorf("%w: elf: read segment: %v", ErrInvalidFormat, err)
			}
		}
		end := p.Vaddr + p.Memsz
		segs = append(segs, loadable{
			vaddr: p.Vaddr,
			end:   end,
			data:  data,
			exec:  p.Flags&elf.PF_X != 0,
		})
		if p.Vaddr < base {
			base = p.Vaddr
		}
		if end > maxEnd {
			maxEnd = end
		}
	}
	if len(segs) == 0 {
		return rawLoad{}, fmt.Errorf("%w: elf: no PT_LOAD segments", ErrInvalidFormat)
	}

	buf := make([]byte, maxEnd-base)
	var ranges []Range
	for _, s := range segs {
		off := int(s.vaddr - base)
		buf = growBuffer(buf, off, len(s.data))
		copy(buf[off:], s.data)
		ranges = append(ranges, Range{Start: s.vaddr, End: s.end, Executable: s.exec})
	}

	entries := []uint64{f.Entry}
	for _, sym := range elfExportedFunctions(f) {
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

// elfExportedFunctions returns the nonzero virtual addresses of STT_FUNC
// dynamic symbols, contributing to entrypoints() the way exported PE/Mach-O
// functions do. Symbol binding (global, weak, local) is not checked.
func elfExportedFunctions(f *elf.File) []uint64 {
	syms, err := f.DynamicSymbols()
	if err != nil {
		return nil
	}
	var out []uint64
	for _, s := range syms {
		if elf.ST_TYPE(s.Info) == elf.STT_FUNC && s.Value != 0 {
			out = append(out, s.Value)
		}
	}
	return out
}
