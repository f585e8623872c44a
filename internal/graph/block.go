package graph

import "github.com/c3rb3ru5d3d53c/binlex-go/internal/disasm"

// Block is a maximal straight-line instruction run ending at a branch,
// call, ret, or another block's start (spec.md §3). It is a view
// materialized from the Graph on demand, not a stored structure.
type Block struct {
	Start        uint64
	Next         *uint64
	To           []uint64
	Edges        int
	Conditional  bool
	Prologue     bool
	Size         int
	Contiguous   bool
	Instructions []disasm.Instruction
}

// Bytes concatenates the block's instruction bytes in address order.
func (b Block) Bytes() []byte {
	out := make([]byte, 0, b.Size)
	for _, ins := range b.Instructions {
		out = append(out, ins.Bytes...)
	}
	return out
}

// MaterializeBlock walks forward from start, following fall-through edges,
// until it hits an instruction with no fall-through (a terminator) or the
// next address is itself another valid block's start (a forced split), per
// spec.md §4.4 step 3. It returns false if start has no decoded instruction.
func MaterializeBlock(g *Graph, start uint64) (Block, bool) {
	first, ok := g.InstructionAt(start)
	if !ok {
		return Block{}, false
	}

	instrs := []disasm.Instruction{first}
	cur := first
	for cur.Edges.FallThrough != nil {
		next := *cur.Edges.FallThrough
		if next != start && g.IsBlockValid(next) {
			break
		}
		ins, ok := g.InstructionAt(next)
		if !ok {
			break
		}
		instrs = append(instrs, ins)
		cur = ins
	}

	last := instrs[len(instrs)-1]
	size := int(last.Address-start) + last.Size

	edges := len(last.Edges.Taken)
	if last.Edges.FallThrough != nil {
		edges++
	}

	return Block{
		Start:        start,
		Next:         last.Edges.FallThrough,
		To:           append([]uint64(nil), last.Edges.Taken...),
		Edges:        edges,
		Conditional:  last.Class == disasm.ConditionalBranch,
		Prologue:     first.IsPrologue,
		Size:         size,
		Contiguous:   true,
		Instructions: instrs,
	}, true
}
