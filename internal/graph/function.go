package graph

import "sort"

// Function is a rooted sub-graph over blocks (spec.md §3), a view
// materialized from the Graph on demand.
type Function struct {
	Entry      uint64
	Blocks     []uint64 // ascending virtual addresses of reachable block starts
	Edges      int
	Prologue   bool
	Contiguous bool
}

// ReachableBlockStarts performs the BFS described in spec.md §4.4 step 4:
// starting from entry, follow fall-through and taken-branch edges (never
// call edges — a call instruction never contributes its target to its own
// function's block set) and stop at any block owned reports as already
// belonging to another function. The returned slice is ascending and
// includes entry itself when entry is a valid block start.
func ReachableBlockStarts(g *Graph, entry uint64, owned func(va uint64) bool) []uint64 {
	if !g.IsBlockValid(entry) {
		return nil
	}

	seen := map[uint64]bool{}
	queue := []uint64{entry}
	seen[entry] = true

	for len(queue) > 0 {
		va := queue[0]
		queue = queue[1:]

		block, ok := MaterializeBlock(g, va)
		if !ok {
			continue
		}

		var next []uint64
		if block.Next != nil {
			next = append(next, *block.Next)
		}
		next = append(next, block.To...)

		for _, n := range next {
			if seen[n] || !g.IsBlockValid(n) {
				continue
			}
			if n != entry && owned != nil && owned(n) {
				continue
			}
			seen[n] = true
			queue = append(queue, n)
		}
	}

	out := make([]uint64, 0, len(seen))
	for va := range seen {
		out = append(out, va)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MaterializeFunction builds the Function view given its already-resolved
// block set. blocks must be the materialized Block values for fn.Blocks, in
// any order; MaterializeFunction sorts a local copy.
func MaterializeFunction(entry uint64, blocks []Block) Function {
	sorted := append([]Block(nil), blocks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	starts := make([]uint64, len(sorted))
	edges := 0
	prologue := false
	contiguous := len(sorted) > 0
	for i, b := range sorted {
		starts[i] = b.Start
		edges += b.Edges
		if b.Start == entry {
			prologue = b.Prologue
		}
		if i > 0 {
			prevEnd := sorted[i-1].Start + uint64(sorted[i-1].Size)
			if prevEnd != b.Start {
				contiguous = false
			}
		}
	}

	return Function{
		Entry:      entry,
		Blocks:     starts,
		Edges:      edges,
		Prologue:   prologue,
		Contiguous: contiguous,
	}
}
