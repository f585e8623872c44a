package disasm

import (
	"encoding/binary"

	"github.com/c3rb3ru5d3d53c/binlex-go/internal/image"
)

// cilDecoder decodes Common Intermediate Language (ECMA-335) bytecode.
// No Go library in the retrieved corpus or the wider ecosystem decodes CIL
// with acceptable provenance (spec.md §4.2 lists CIL as a supported
// architecture but the engine has no symbol/metadata reader for it); this
// is a hand-written table over the single-byte and 0xFE-prefixed two-byte
// opcode spaces, covering the operand shapes (none, int8, int16, int32, int64,
// float32, float64, metadata token, switch table) needed to compute
// instruction length and branch targets.
type cilDecoder struct{}

type cilOperand uint8

const (
	opNone cilOperand = iota
	opInt8
	opInt16
	opInt32
	opInt64
	opFloat32
	opFloat64
	opToken  // 4-byte metadata token (method/field/type) - not a VA
	opSwitch // 4-byte count N followed by N 4-byte relative targets
)

type cilOpInfo struct {
	operand    cilOperand
	class      Classification
	shortBrTgt bool // branch target is int8 instead of int32
}

// cilSingleByte maps the ~0x00-0xFF single-byte opcode space. Unlisted
// opcodes default to opNone/Linear (the large majority: arithmetic, stack,
// and load/store opcodes that carry no operand bytes).
var cilSingleByte = map[byte]cilOpInfo{
	0x0E: {operand: opInt8},                   // ldarg.s
	0x0F: {operand: opInt8},                   // ldarga.s
	0x10: {operand: opInt8},                   // starg.s
	0x11: {operand: opInt8},                   // ldloc.s
	0x12: {operand: opInt8},                   // ldloca.s
	0x13: {operand: opInt8},                   // stloc.s
	0x1F: {operand: opInt8},                   // ldc.i4.s
	0x20: {operand: opInt32},                  // ldc.i4
	0x21: {operand: opInt64},                  // ldc.i8
	0x22: {operand: opFloat32},                // ldc.r4
	0x23: {operand: opFloat64},                // ldc.r8
	0x26: {operand: opNone, class: Linear},    // pop
	0x27: {operand: opToken, class: Call},     // jmp
	0x28: {operand: opToken, class: Call},     // call
	0x29: {operand: opToken, class: Call},     // calli
	0x2A: {operand: opNone, class: Ret},       // ret
	0x2B: {operand: opInt8, class: UnconditionalBranch, shortBrTgt: true}, // br.s
	0x2C: {operand: opInt8, class: ConditionalBranch, shortBrTgt: true},   // brfalse.s
	0x2D: {operand: opInt8, class: ConditionalBranch, shortBrTgt: true},   // brtrue.s
	0x2E: {operand: opInt8, class: ConditionalBranch, shortBrTgt: true},   // beq.s
	0x2F: {operand: opInt8, class: ConditionalBranch, shortBrTgt: true},   // bge.s
	0x30: {operand: opInt8, class: ConditionalBranch, shortBrTgt: true},   // bgt.s
	0x31: {operand: opInt8, class: ConditionalBranch, shortBrTgt: true},   // ble.s
	0x32: {operand: opInt8, class: ConditionalBranch, shortBrTgt: true},   // blt.s
	0x33: {operand: opInt8, class: ConditionalBranch, shortBrTgt: true},   // bne.un.s
	0x34: {operand: opInt8, class: ConditionalBranch, shortBrTgt: true},   // bge.un.s
	0x35: {operand: opInt8, class: ConditionalBranch, shortBrTgt: true},   // bgt.un.s
	0x36: {operand: opInt8, class: ConditionalBranch, shortBrTgt: true},   // ble.un.s
	0x37: {operand: opInt8, class: ConditionalBranch, shortBrTgt: true},   // blt.un.s
	0x38: {operand: opInt32, class: UnconditionalBranch}, // br
	0x39: {operand: opInt32, class: ConditionalBranch},    // brfalse
	0x3A: {operand: opInt32, class: ConditionalBranch},    // brtrue
	0x3B: {operand: opInt32, class: ConditionalBranch},    // beq
	0x3C: {operand: opInt32, class: ConditionalBranch},    // bge
	0x3D: {operand: opInt32, class: ConditionalBranch},    // bgt
	0x3E: {operand: opInt32, class: ConditionalBranch},    // ble
	0x3F: {operand: opInt32, class: ConditionalBranch},    // blt
	0x40: {operand: opInt32, class: ConditionalBranch},    // bne.un
	0x41: {operand: opInt32, class: ConditionalBranch},    // bge.un
	0x42: {operand: opInt32, class: ConditionalBranch},    // bgt.un
	0x43: {operand: opInt32, class: ConditionalBranch},    // ble.un
	0x44: {operand: opInt32, class: ConditionalBranch},    // blt.un
	0x45: {operand: opSwitch},                             // switch
	0x6F: {operand: opToken, class: Call},                 // callvirt
	0x73: {operand: opToken},                              // newobj
	0x8C: {operand: opToken},                               // box
	0xA3: {operand: opToken},                               // ldelem
	0xA5: {operand: opToken},                               // unbox.any
	0x7B: {operand: opToken},                               // ldfld
	0x7D: {operand: opToken},                               // stfld
	0x7E: {operand: opToken},                               // ldsfld
	0x80: {operand: opToken},                               // stsfld
	0x72: {operand: opToken},                               // ldstr
	0xFE: {operand: opNone},                                // two-byte escape, handled separately
}

// cilExtended maps the 0xFE-prefixed two-byte opcode space used by a small
// set of comparison/tail-call opcodes.
var cilExtended = map[byte]cilOpInfo{
	0x06: {operand: opToken},                  // ldftn
	0x09: {operand: opInt16},                  // ldarg
	0x0C: {operand: opInt16},                  // ldloc
	0x0D: {operand: opInt16},                  // ldloca
	0x0E: {operand: opInt16},                  // stloc
	// ceq, cgt, clt, and family take no operand bytes (default opNone).
}

func (cilDecoder) Decode(img *image.Image, va uint64) (Instruction, error) {
	off, ok := img.Translate(va)
	if !ok {
		return Instruction{}, &ErrDecode{Address: va, Reason: "address outside image"}
	}
	data := img.Bytes[off:]
	if len(data) == 0 {
		return Instruction{}, &ErrDecode{Address: va, Reason: "empty stream"}
	}

	opLen := 1
	info, ok := cilSingleByte[data[0]]
	if data[0] == 0xFE {
		if len(data) < 2 {
			return Instruction{}, &ErrDecode{Address: va, Reason: "truncated two-byte opcode"}
		}
		info, ok = cilExtended[data[1]]
		opLen = 2
	}
	if !ok {
		info = cilOpInfo{operand: opNone, class: Linear}
	}

	size := opLen
	var spans []OperandSpan
	var targetOffset int64
	haveTarget := false

	switch info.operand {
	case opInt8:
		size += 1
		if info.shortBrTgt {
			if opLen+1 > len(data) {
				return Instruction{}, &ErrDecode{Address: va, Reason: "truncated operand"}
			}
			targetOffset = int64(int8(data[opLen]))
			haveTarget = true
		}
	case opInt16:
		size += 2
	case opInt32:
		size += 4
		if opLen+4 > len(data) {
			return Instruction{}, &ErrDecode{Address: va, Reason: "truncated operand"}
		}
		if info.class == ConditionalBranch || info.class == UnconditionalBranch {
			targetOffset = int64(int32(binary.LittleEndian.Uint32(data[opLen:])))
			haveTarget = true
		}
	case opInt64:
		size += 8
	case opFloat32:
		size += 4
	case opFloat64:
		size += 8
	case opToken:
		size += 4
		spans = []OperandSpan{{NibbleOffset: opLen * 2, NibbleCount: 8}}
	case opSwitch:
		if opLen+4 > len(data) {
			return Instruction{}, &ErrDecode{Address: va, Reason: "truncated switch count"}
		}
		n := int(binary.LittleEndian.Uint32(data[opLen:]))
		size += 4 + n*4
	}

	if size > len(data) {
		return Instruction{}, &ErrDecode{Address: va, Reason: "truncated instruction"}
	}

	ins := Instruction{
		Address:  va,
		Size:     size,
		Bytes:    append([]byte(nil), data[:size]...),
		Class:    info.class,
		Operands: spans,
	}

	next := va + uint64(size)
	switch info.class {
	case Ret:
		// no edges
	case Call:
		ins.Edges.FallThrough = ptr(next)
		// CIL call targets are metadata tokens, not virtual addresses; the
		// walker relies on external function hints (spec.md §6) to seed
		// callee entrypoints for CIL images.
	case UnconditionalBranch:
		if haveTarget {
			ins.Edges.Taken = []uint64{uint64(int64(next) + targetOffset)}
		}
	case ConditionalBranch:
		ins.Edges.FallThrough = ptr(next)
		if haveTarget {
			ins.Edges.Taken = []uint64{uint64(int64(next) + targetOffset)}
		}
	default:
		ins.Edges.FallThrough = ptr(next)
	}

	return ins, nil
}
