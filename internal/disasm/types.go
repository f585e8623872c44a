// Package disasm decodes a single machine instruction at a virtual address
// within an Image, reporting its byte span, branch semantics, and the
// nibble-resolution operand spans the chromosome builder wildcards
// (spec.md §4.2).
package disasm

import (
	"fmt"

	"github.com/c3rb3ru5d3d53c/binlex-go/internal/arch"
	"github.com/c3rb3ru5d3d53c/binlex-go/internal/image"
)

// Classification buckets an instruction by its control-flow behavior.
type Classification uint8

const (
	Linear Classification = iota
	ConditionalBranch
	UnconditionalBranch
	Call
	Ret
	IndirectBranch
	Invalid
)

func (c Classification) String() string {
	switch c {
	case Linear:
		return "linear"
	case ConditionalBranch:
		return "conditional_branch"
	case UnconditionalBranch:
		return "unconditional_branch"
	case Call:
		return "call"
	case Ret:
		return "ret"
	case IndirectBranch:
		return "indirect_branch"
	default:
		return "invalid"
	}
}

// Edges describes the control-flow successors of an instruction.
type Edges struct {
	FallThrough *uint64
	Taken       []uint64
	Calls       []uint64
	Indirect    bool
}

// OperandSpan marks a nibble-resolution interval within an instruction's
// byte sequence that encodes a memory-referring immediate or displacement
// (spec.md §4.2, §9 "Nibble operands"). NibbleOffset counts nibbles, not
// bytes, from the start of the instruction, so that the byte shared between
// an opcode nibble and a register nibble is never blurred.
type OperandSpan struct {
	NibbleOffset int
	NibbleCount  int
}

// Instruction is one decoded machine instruction.
type Instruction struct {
	Address    uint64
	Size       int
	Bytes      []byte
	Class      Classification
	Edges      Edges
	Operands   []OperandSpan
	IsPrologue bool
}

// ErrDecode wraps a failed decode at a specific address.
type ErrDecode struct {
	Address uint64
	Reason  string
}

func (e *ErrDecode) Error() string {
	return fmt.Sprintf("disasm: invalid instruction at %#x: %s", e.Address, e.Reason)
}

// Decoder decodes one instruction at va within img.
type Decoder interface {
	Decode(img *image.Image, va uint64) (Instruction, error)
}

// New returns the Decoder registered for a, or an error if a is unsupported.
func New(a arch.Architecture) (Decoder, error) {
	switch a {
	case arch.AMD64:
		return amd64Decoder{mode: 64}, nil
	case arch.I386:
		return amd64Decoder{mode: 32}, nil
	case arch.CIL:
		return cilDecoder{}, nil
	default:
		return nil, fmt.Errorf("disasm: no decoder registered for %s", a)
	}
}
