// Package graph is the Control-Flow Graph: a thread-safe, content-addressed
// store mapping virtual address to Instruction, with disjoint sub-indices
// marking valid block-starts and valid function-entries (spec.md §4.3).
package graph

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/c3rb3ru5d3d53c/binlex-go/internal/disasm"
)

// UpsertResult reports whether Upsert added a new entry or found an
// existing, identical one.
type UpsertResult uint8

const (
	Inserted UpsertResult = iota
	Already
)

// ErrConflictingDecode is returned when two upserts at the same address
// disagree on the decoded bytes. Spec.md §4.3 says this "must not occur
// given walker discipline"; it is detected defensively rather than assumed.
type ErrConflictingDecode struct {
	Address uint64
}

func (e *ErrConflictingDecode) Error() string {
	return fmt.Sprintf("graph: conflicting decode at %#x", e.Address)
}

type entry struct {
	ins         disasm.Instruction
	blockValid  atomic.Bool
	funcValid   atomic.Bool
}

// shardCount favors a sharded map over a single mutex, per DESIGN NOTES §9
// ("favor sharded lock-free maps keyed by VA over a single lock").
const shardCount = 64

type shard struct {
	mu sync.RWMutex
	m  map[uint64]*entry
}

// Graph is safe for concurrent use: multiple writers may Upsert in
// parallel, and readers may take iteration snapshots without blocking
// writers.
type Graph struct {
	shards [shardCount]*shard
}

// New returns an empty Graph.
func New() *Graph {
	g := &Graph{}
	for i := range g.shards {
		g.shards[i] = &shard{m: make(map[uint64]*entry)}
	}
	return g
}

func (g *Graph) shardFor(va uint64) *shard {
	return g.shards[va%shardCount]
}

// Upsert inserts ins if its address hasn't been decoded yet, or reports
// Already if an identical decode is already present. It returns
// ErrConflictingDecode if a different decode exists at the same address.
func (g *Graph) Upsert(ins disasm.Instruction) (UpsertResult, error) {
	s := g.shardFor(ins.Address)

	s.mu.RLock()
	if existing, ok := s.m[ins.Address]; ok {
		s.mu.RUnlock()
		if existing.ins.Size != ins.Size || !bytesEqual(existing.ins.Bytes, ins.Bytes) {
			return Already, &ErrConflictingDecode{Address: ins.Address}
		}
		return Already, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.m[ins.Address]; ok {
		if existing.ins.Size != ins.Size || !bytesEqual(existing.ins.Bytes, ins.Bytes) {
			return Already, &ErrConflictingDecode{Address: ins.Address}
		}
		return Already, nil
	}
	s.m[ins.Address] = &entry{ins: ins}
	return Inserted, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// InstructionAt returns the decoded instruction at va, if any.
func (g *Graph) InstructionAt(va uint64) (disasm.Instruction, bool) {
	s := g.shardFor(va)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.m[va]
	if !ok {
		return disasm.Instruction{}, false
	}
	return e.ins, true
}

// Has reports whether va has already been decoded, without copying the
// instruction.
func (g *Graph) Has(va uint64) bool {
	s := g.shardFor(va)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.m[va]
	return ok
}

// MarkBlockValid flips the block-start validity bit for va, which must
// already have a decoded instruction. The flip is monotonic: once valid,
// always valid.
func (g *Graph) MarkBlockValid(va uint64) {
	s := g.shardFor(va)
	s.mu.RLock()
	e, ok := s.m[va]
	s.mu.RUnlock()
	if ok {
		e.blockValid.Store(true)
	}
}

// MarkFunctionValid flips the function-entry validity bit for va.
func (g *Graph) MarkFunctionValid(va uint64) {
	s := g.shardFor(va)
	s.mu.RLock()
	e, ok := s.m[va]
	s.mu.RUnlock()
	if ok {
		e.funcValid.Store(true)
	}
}

// IsBlockValid reports whether va has been marked as a valid block start.
func (g *Graph) IsBlockValid(va uint64) bool {
	s := g.shardFor(va)
	s.mu.RLock()
	e, ok := s.m[va]
	s.mu.RUnlock()
	return ok && e.blockValid.Load()
}

// IsFunctionValid reports whether va has been marked as a valid function
// entry.
func (g *Graph) IsFunctionValid(va uint64) bool {
	s := g.shardFor(va)
	s.mu.RLock()
	e, ok := s.m[va]
	s.mu.RUnlock()
	return ok && e.funcValid.Load()
}

// InstructionAddresses returns every decoded address, ascending.
func (g *Graph) InstructionAddresses() []uint64 {
	var out []uint64
	for _, s := range g.shards {
		s.mu.RLock()
		for va := range s.m {
			out = append(out, va)
		}
		s.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ValidBlockAddresses returns every address marked valid via
// MarkBlockValid, ascending.
func (g *Graph) ValidBlockAddresses() []uint64 {
	return g.filterAddresses(func(e *entry) bool { return e.blockValid.Load() })
}

// ValidFunctionAddresses returns every address marked valid via
// MarkFunctionValid, ascending.
func (g *Graph) ValidFunctionAddresses() []uint64 {
	return g.filterAddresses(func(e *entry) bool { return e.funcValid.Load() })
}

func (g *Graph) filterAddresses(keep func(*entry) bool) []uint64 {
	var out []uint64
	for _, s := range g.shards {
		s.mu.RLock()
		for va, e := range s.m {
			if keep(e) {
				out = append(out, va)
			}
		}
		s.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
