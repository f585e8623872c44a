// Package walker grows a graph.Graph from an image's entrypoints and
// externally supplied function hints until quiescent: recursive-descent
// decode expanding along fall-through and taken-branch edges, block/function
// formation once the worklist drains, and an optional linear-sweep pass
// feeding newly found seeds back through the same process (spec.md §4.4).
package walker

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/c3rb3ru5d3d53c/binlex-go/internal/config"
	"github.com/c3rb3ru5d3d53c/binlex-go/internal/disasm"
	"github.com/c3rb3ru5d3d53c/binlex-go/internal/graph"
	"github.com/c3rb3ru5d3d53c/binlex-go/internal/image"
)

// FunctionInfo is one function view produced by a completed walk: its entry
// address and the ascending block starts it owns.
type FunctionInfo struct {
	Entry  uint64
	Blocks []uint64
}

// Result is everything a walk discovered, ready for chromosome/hashing/
// emission stages.
type Result struct {
	Graph *graph.Graph
	// Functions is ordered by ascending entry address.
	Functions []FunctionInfo
	// BlockFunctions maps a block start to the index (position within that
	// function's Blocks slice) it occupies in every function that owns it
	// (spec.md §6 "functions" field on a block genome).
	BlockFunctions map[uint64]map[uint64]int
}

// Walker coordinates one image's worth of disassembly.
type Walker struct {
	img *image.Image
	dec disasm.Decoder
	cfg *config.Config

	graph       *graph.Graph
	blockStarts *addrSet
	funcSeeds   *addrSet
}

// New builds a Walker for img using cfg's thread count and sweep setting.
func New(img *image.Image, dec disasm.Decoder, cfg *config.Config) *Walker {
	return &Walker{
		img:         img,
		dec:         dec,
		cfg:         cfg,
		graph:       graph.New(),
		blockStarts: newAddrSet(),
		funcSeeds:   newAddrSet(),
	}
}

// Run seeds the worklist from the image's entrypoints plus hints, drains it
// with cfg.General.Threads workers, forms blocks and functions, and — unless
// disabled — repeats a linear-sweep pass until no new seeds are found.
func (w *Walker) Run(ctx context.Context, hints []uint64) (Result, error) {
	seeds := append([]uint64(nil), w.img.Entrypoints()...)
	seeds = append(seeds, hints...)
	for _, va := range seeds {
		w.funcSeeds.add(va)
		w.blockStarts.add(va)
	}

	if err := w.descend(ctx, seeds); err != nil {
		return Result{}, err
	}

	if w.cfg.Disassembler.Sweep.Enabled {
		for {
			newSeeds := w.sweepOnce()
			if len(newSeeds) == 0 {
				break
			}
			for _, va := range newSeeds {
				w.funcSeeds.add(va)
				w.blockStarts.add(va)
			}
			if err := w.descend(ctx, newSeeds); err != nil {
				return Result{}, err
			}
		}
	}

	w.formBlocks()
	functions, blockFns := w.formFunctions()

	return Result{
		Graph:          w.graph,
		Functions:      functions,
		BlockFunctions: blockFns,
	}, nil
}

// descend runs recursive-descent decode from seeds using a bounded worker
// pool and a termination-detection worklist (spec.md §4.4 steps 1-2, §9
// "work-stealing queue with a termination-detection barrier").
func (w *Walker) descend(ctx context.Context, seeds []uint64) error {
	wl := newWorklist(ctx)
	for _, va := range seeds {
		wl.push(va)
	}

	threads := w.cfg.General.Threads
	if threads < 1 {
		threads = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < threads; i++ {
		g.Go(func() error {
			for {
				va, ok := wl.pop()
				if !ok {
					return nil
				}
				if gctx.Err() != nil {
					wl.done()
					continue
				}
				w.processOne(va, wl)
				wl.done()
			}
		})
	}
	return g.Wait()
}

// processOne decodes va, upserts it, and enqueues its successors per
// spec.md §4.4 step 2. A call target is enqueued both for decode (it is
// itself a block/function entry) and recorded as a function seed, never as
// part of the calling function's own block set. The fall-through after a
// conditional branch or a call is recorded as a block start, so the block
// ends at that branch or call.
func (w *Walker) processOne(va uint64, wl *worklist) {
	if w.graph.Has(va) {
		return
	}
	ins, err := w.dec.Decode(w.img, va)
	if err != nil {
		return // decode error: this path ends here; the error is not logged
	}
	if _, err := w.graph.Upsert(ins); err != nil {
		return // conflicting decode at va: should not occur given walker discipline
	}

	if ins.Edges.FallThrough != nil {
		if ins.Class == disasm.ConditionalBranch || ins.Class == disasm.Call {
			w.blockStarts.add(*ins.Edges.FallThrough)
		}
		wl.push(*ins.Edges.FallThrough)
	}
	for _, t := range ins.Edges.Taken {
		w.blockStarts.add(t)
		wl.push(t)
	}
	for _, c := range ins.Edges.Calls {
		w.blockStarts.add(c)
		w.funcSeeds.add(c)
		wl.push(c)
	}
}

// formBlocks marks every recognized block-start address that actually
// decoded as a valid block (spec.md §4.4 step 3).
func (w *Walker) formBlocks() {
	for _, va := range w.blockStarts.sorted() {
		if w.graph.Has(va) {
			w.graph.MarkBlockValid(va)
		}
	}
}

// formFunctions computes each function's reachable block set by BFS over
// fall-through/taken edges, claiming blocks in ascending entry-VA order so
// that a block already owned by an earlier (lower-VA) function is excluded
// from a later one (spec.md §4.4 step 4, open question on tie-breaks
// resolved in DESIGN.md).
func (w *Walker) formFunctions() ([]FunctionInfo, map[uint64]map[uint64]int) {
	claimed := map[uint64]uint64{} // block start -> owning function entry
	var functions []FunctionInfo

	for _, entry := range w.funcSeeds.sorted() {
		if !w.graph.IsBlockValid(entry) {
			continue
		}
		if _, already := claimed[entry]; already {
			continue
		}
		owned := func(va uint64) bool {
			_, ok := claimed[va]
			return ok
		}
		blocks := graph.ReachableBlockStarts(w.graph, entry, owned)
		if len(blocks) == 0 {
			continue
		}
		for _, b := range blocks {
			claimed[b] = entry
		}
		w.graph.MarkFunctionValid(entry)
		functions = append(functions, FunctionInfo{Entry: entry, Blocks: blocks})
	}

	blockFns := map[uint64]map[uint64]int{}
	for _, fn := range functions {
		for i, b := range fn.Blocks {
			if blockFns[b] == nil {
				blockFns[b] = map[uint64]int{}
			}
			blockFns[b][fn.Entry] = i
		}
	}
	return functions, blockFns
}

// sweepOnce attempts decode at every executable byte not already covered by
// a decoded instruction (spec.md §4.4 step 5). Any address whose decode
// succeeds and which either matches a prologue signature or is already a
// recognized call target is promoted to a new seed; a sweep decode that
// would overlap an already-decoded instruction is discarded, never
// upserted (walker-decoded instructions win — see DESIGN.md's Open
// Question resolution).
func (w *Walker) sweepOnce() []uint64 {
	var promoted []uint64
	for _, r := range w.img.ExecutableRanges() {
		va := r.Start
		for va < r.End {
			if w.graph.Has(va) {
				ins, _ := w.graph.InstructionAt(va)
				va += uint64(ins.Size)
				continue
			}
			ins, err := w.dec.Decode(w.img, va)
			if err != nil {
				va++
				continue
			}
			overlaps := false
			for k := uint64(1); k < uint64(ins.Size); k++ {
				if w.graph.Has(va + k) {
					overlaps = true
					break
				}
			}
			if overlaps {
				va++
				continue
			}
			if _, err := w.graph.Upsert(ins); err != nil {
				va++
				continue
			}
			if ins.IsPrologue || w.funcSeeds.has(va) {
				if w.blockStarts.add(va) {
					promoted = append(promoted, va)
				}
			}
			va += uint64(ins.Size)
		}
	}
	return promoted
}
