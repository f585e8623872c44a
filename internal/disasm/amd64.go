package disasm

import (
	"golang.org/x/arch/x86/x86asm"

	"github.com/c3rb3ru5d3d53c/binlex-go/internal/image"
)

// amd64Decoder wraps golang.org/x/arch/x86/x86asm for both AMD64 (mode 64)
// and I386 (mode 32), following the decode-and-annotate approach in
// other_examples/c449e895_mewmew-x__disasm-x86-x86.go.go and the prologue
// byte-pattern scan in other_examples/786da218_maxgio92-resurgo__detector.go.go.
type amd64Decoder struct {
	mode int
}

// maxInstrLen bounds how many trailing bytes of the image we hand to the
// decoder; x86 instructions are at most 15 bytes.
const maxInstrLen = 15

func (d amd64Decoder) Decode(img *image.Image, va uint64) (Instruction, error) {
	off, ok := img.Translate(va)
	if !ok {
		return Instruction{}, &ErrDecode{Address: va, Reason: "address outside image"}
	}
	end := off + maxInstrLen
	if end > len(img.Bytes) {
		end = len(img.Bytes)
	}
	window := img.Bytes[off:end]

	inst, err := x86asm.Decode(window, d.mode)
	if err != nil || inst.Len == 0 {
		return Instruction{}, &ErrDecode{Address: va, Reason: "x86 decode failed"}
	}

	raw := append([]byte(nil), window[:inst.Len]...)
	ins := Instruction{
		Address:  va,
		Size:     inst.Len,
		Bytes:    raw,
		Operands: operandSpans(inst, raw),
	}
	classify(&ins, inst, va)
	ins.IsPrologue = d.isPushRBP(inst) && d.peekMovRBPRSP(img, va+uint64(inst.Len))
	return ins, nil
}

// classify fills Class and Edges from the decoded instruction.
func classify(ins *Instruction, inst x86asm.Inst, va uint64) {
	next := va + uint64(inst.Len)

	switch inst.Op {
	case x86asm.RET, x86asm.RETF:
		ins.Class = Ret
		return
	case x86asm.CALL, x86asm.CALLF:
		if target, ok := relTarget(inst, va); ok {
			ins.Class = Call
			ins.Edges.FallThrough = ptr(next)
			ins.Edges.Calls = []uint64{target}
			return
		}
		ins.Class = Call
		ins.Edges.Indirect = true
		return
	case x86asm.JMP:
		if target, ok := relTarget(inst, va); ok {
			ins.Class = UnconditionalBranch
			ins.Edges.Taken = []uint64{target}
			return
		}
		ins.Class = IndirectBranch
		ins.Edges.Indirect = true
		return
	}

	if isConditionalJump(inst.Op) {
		if target, ok := relTarget(inst, va); ok {
			ins.Class = ConditionalBranch
			ins.Edges.FallThrough = ptr(next)
			ins.Edges.Taken = []uint64{target}
			return
		}
		ins.Class = IndirectBranch
		ins.Edges.Indirect = true
		return
	}

	ins.Class = Linear
	ins.Edges.FallThrough = ptr(next)
}

func ptr(v uint64) *uint64 { return &v }

func isConditionalJump(op x86asm.Op) bool {
	switch op {
	case x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE, x86asm.JE, x86asm.JG, x86asm.JGE,
		x86asm.JL, x86asm.JLE, x86asm.JNE, x86asm.JNO, x86asm.JNP, x86asm.JNS, x86asm.JO,
		x86asm.JP, x86asm.JCXZ, x86asm.JECXZ, x86asm.JRCXZ,
		x86asm.LOOP, x86asm.LOOPE, x86asm.LOOPNE:
		return true
	}
	return false
}

// relTarget reports the concrete target of a direct (PC-relative) branch or
// call, per x86asm's convention that a Rel argument is the signed
// displacement added to address-after-instruction.
func relTarget(inst x86asm.Inst, va uint64) (uint64, bool) {
	if len(inst.Args) == 0 || inst.Args[0] == nil {
		return 0, false
	}
	rel, ok := inst.Args[0].(x86asm.Rel)
	if !ok {
		return 0, false
	}
	return uint64(int64(va) + int64(inst.Len) + int64(rel)), true
}

// operandSpans locates the nibble-resolution byte ranges within raw that
// encode a memory-referring displacement or a PC-relative target, per
// spec.md §9's nibble-operand requirement. x86asm does not expose byte
// offsets for ModRM displacement fields, so the classic disp8/disp32 case is
// recovered by a small hand-rolled ModRM/SIB scan; the RIP-relative and
// direct-branch case is covered directly by x86asm's PCRelOff/PCRel fields.
func operandSpans(inst x86asm.Inst, raw []byte) []OperandSpan {
	if inst.PCRel > 0 {
		return []OperandSpan{{NibbleOffset: inst.PCRelOff * 2, NibbleCount: inst.PCRel * 2}}
	}
	if hasMemArg(inst) {
		if off, n, ok := scanModRMDisplacement(raw); ok {
			return []OperandSpan{{NibbleOffset: off * 2, NibbleCount: n * 2}}
		}
	}
	return nil
}

func hasMemArg(inst x86asm.Inst) bool {
	for _, a := range inst.Args {
		if a == nil {
			break
		}
		if _, ok := a.(x86asm.Mem); ok {
			return true
		}
	}
	return false
}

var legacyPrefixBytes = map[byte]bool{
	0xF0: true, 0xF2: true, 0xF3: true,
	0x2E: true, 0x36: true, 0x3E: true, 0x26: true, 0x64: true, 0x65: true,
	0x66: true, 0x67: true,
}

// scanModRMDisplacement walks legacy prefixes, an optional REX byte, the
// opcode, and an optional ModRM/SIB pair to locate a trailing disp8/disp32
// field, returning its byte offset and length within raw.
func scanModRMDisplacement(raw []byte) (offset, length int, ok bool) {
	i := 0
	for i < len(raw) && legacyPrefixBytes[raw[i]] {
		i++
	}
	if i < len(raw) && raw[i]&0xF0 == 0x40 {
		i++ // REX prefix
	}
	if i >= len(raw) {
		return 0, 0, false
	}
	if raw[i] == 0x0F {
		i++
		if i < len(raw) && (raw[i] == 0x38 || raw[i] == 0x3A) {
			i++
		}
	}
	i++ // one-byte opcode (escape byte, if any, already consumed above)
	if i >= len(raw) {
		return 0, 0, false
	}

	modrm := raw[i]
	mod := modrm >> 6
	rm := modrm & 0x7
	i++

	if mod == 3 {
		return 0, 0, false // register-direct, no memory operand
	}

	if rm == 4 && i < len(raw) {
		sib := raw[i]
		base := sib & 0x7
		i++
		if mod == 0 && base == 5 {
			if i+4 > len(raw) {
				return 0, 0, false
			}
			return i, 4, true
		}
	} else if mod == 0 && rm == 5 {
		if i+4 > len(raw) {
			return 0, 0, false
		}
		return i, 4, true
	}

	switch mod {
	case 1:
		if i >= len(raw) {
			return 0, 0, false
		}
		return i, 1, true
	case 2:
		if i+4 > len(raw) {
			return 0, 0, false
		}
		return i, 4, true
	}
	return 0, 0, false
}

func (d amd64Decoder) isPushRBP(inst x86asm.Inst) bool {
	if inst.Op != x86asm.PUSH {
		return false
	}
	reg, ok := inst.Args[0].(x86asm.Reg)
	if !ok {
		return false
	}
	if d.mode == 64 {
		return reg == x86asm.RBP
	}
	return reg == x86asm.EBP
}

func (d amd64Decoder) peekMovRBPRSP(img *image.Image, va uint64) bool {
	off, ok := img.Translate(va)
	if !ok {
		return false
	}
	end := off + maxInstrLen
	if end > len(img.Bytes) {
		end = len(img.Bytes)
	}
	inst, err := x86asm.Decode(img.Bytes[off:end], d.mode)
	if err != nil || inst.Op != x86asm.MOV {
		return false
	}
	dst, ok1 := inst.Args[0].(x86asm.Reg)
	src, ok2 := inst.Args[1].(x86asm.Reg)
	if !ok1 || !ok2 {
		return false
	}
	if d.mode == 64 {
		return dst == x86asm.RBP && src == x86asm.RSP
	}
	return dst == x86asm.EBP && src == x86asm.ESP
}
