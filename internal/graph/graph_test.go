package graph

import (
	"sync"
	"testing"

	"github.com/c3rb3ru5d3d53c/binlex-go/internal/disasm"
)

func lin(addr uint64, size int) disasm.Instruction {
	next := addr + uint64(size)
	return disasm.Instruction{
		Address: addr,
		Size:    size,
		Bytes:   make([]byte, size),
		Class:   disasm.Linear,
		Edges:   disasm.Edges{FallThrough: &next},
	}
}

func ret(addr uint64, size int) disasm.Instruction {
	return disasm.Instruction{
		Address: addr,
		Size:    size,
		Bytes:   make([]byte, size),
		Class:   disasm.Ret,
	}
}

func TestUpsertIdempotent(t *testing.T) {
	g := New()
	ins := lin(0x1000, 4)
	r1, err := g.Upsert(ins)
	if err != nil || r1 != Inserted {
		t.Fatalf("first upsert = %v, %v; want Inserted, nil", r1, err)
	}
	r2, err := g.Upsert(ins)
	if err != nil || r2 != Already {
		t.Fatalf("second upsert = %v, %v; want Already, nil", r2, err)
	}
}

func TestUpsertConflict(t *testing.T) {
	g := New()
	if _, err := g.Upsert(lin(0x1000, 4)); err != nil {
		t.Fatal(err)
	}
	_, err := g.Upsert(lin(0x1000, 5))
	if err == nil {
		t.Fatalf("expected ErrConflictingDecode for differing size at same address")
	}
}

func TestConcurrentUpsertsDisjointAddresses(t *testing.T) {
	g := New()
	var wg sync.WaitGroup
	for i := 0; i < 256; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g.Upsert(lin(uint64(i*4), 4))
		}(i)
	}
	wg.Wait()
	if got := len(g.InstructionAddresses()); got != 256 {
		t.Fatalf("InstructionAddresses() len = %d, want 256", got)
	}
}

func TestMaterializeBlockStopsAtTerminator(t *testing.T) {
	g := New()
	g.Upsert(lin(0x1000, 2))
	g.Upsert(lin(0x1002, 2))
	g.Upsert(ret(0x1004, 1))
	g.MarkBlockValid(0x1000)

	b, ok := MaterializeBlock(g, 0x1000)
	if !ok {
		t.Fatal("MaterializeBlock returned false")
	}
	if b.Size != 5 {
		t.Fatalf("block size = %d, want 5", b.Size)
	}
	if b.Next != nil {
		t.Fatalf("block.Next = %v, want nil after ret", *b.Next)
	}
	if len(b.Instructions) != 3 {
		t.Fatalf("instructions = %d, want 3", len(b.Instructions))
	}
}

func TestMaterializeBlockSplitsAtOwnedBlockStart(t *testing.T) {
	g := New()
	g.Upsert(lin(0x1000, 2))
	g.Upsert(lin(0x1002, 2))
	g.MarkBlockValid(0x1000)
	g.MarkBlockValid(0x1002) // a jump target lands here, forcing a split

	b, ok := MaterializeBlock(g, 0x1000)
	if !ok {
		t.Fatal("MaterializeBlock returned false")
	}
	if b.Size != 2 {
		t.Fatalf("block size = %d, want 2 (split before 0x1002)", b.Size)
	}
	if b.Next == nil || *b.Next != 0x1002 {
		t.Fatalf("block.Next = %v, want 0x1002", b.Next)
	}
}

func TestReachableBlockStartsSkipsOwned(t *testing.T) {
	g := New()
	g.Upsert(disasm.Instruction{ // jmp 0x2000
		Address: 0x1000,
		Size:    2,
		Bytes:   make([]byte, 2),
		Class:   disasm.UnconditionalBranch,
		Edges:   disasm.Edges{Taken: []uint64{0x2000}},
	})
	g.Upsert(ret(0x2000, 1))
	g.MarkBlockValid(0x1000)
	g.MarkBlockValid(0x2000)

	owned := func(va uint64) bool { return va == 0x2000 }
	got := ReachableBlockStarts(g, 0x1000, owned)
	if len(got) != 1 || got[0] != 0x1000 {
		t.Fatalf("ReachableBlockStarts = %v, want [0x1000]", got)
	}
}
