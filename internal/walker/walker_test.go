package walker

import (
	"context"
	"testing"

	"github.com/c3rb3ru5d3d53c/binlex-go/internal/arch"
	"github.com/c3rb3ru5d3d53c/binlex-go/internal/config"
	"github.com/c3rb3ru5d3d53c/binlex-go/internal/disasm"
	"github.com/c3rb3ru5d3d53c/binlex-go/internal/image"
)

func newImage(t *testing.T, base uint64, data []byte) *image.Image {
	t.Helper()
	return &image.Image{
		Bytes:   data,
		Arch:    arch.AMD64,
		Base:    base,
		Ranges:  []image.Range{{Start: base, End: base + uint64(len(data)), Executable: true}},
		Entries: []uint64{base},
	}
}

func testConfig(threads int, sweep bool) *config.Config {
	c := config.Default()
	c.General.Threads = threads
	c.Disassembler.Sweep.Enabled = sweep
	return c
}

// TestRunStraightLineFunction decodes a tiny function: push rbp; mov
// rbp,rsp; ret. It should produce one block and one valid function at the
// entrypoint with prologue=true.
func TestRunStraightLineFunction(t *testing.T) {
	code := []byte{0x55, 0x48, 0x89, 0xe5, 0xc3} // push rbp; mov rbp,rsp; ret
	img := newImage(t, 0x1000, code)
	dec, err := disasm.New(arch.AMD64)
	if err != nil {
		t.Fatal(err)
	}

	w := New(img, dec, testConfig(1, false))
	res, err := w.Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}

	if !res.Graph.IsBlockValid(0x1000) {
		t.Fatal("entry not marked as a valid block")
	}
	if !res.Graph.IsFunctionValid(0x1000) {
		t.Fatal("entry not marked as a valid function")
	}
	if len(res.Functions) != 1 || res.Functions[0].Entry != 0x1000 {
		t.Fatalf("Functions = %+v, want one function at 0x1000", res.Functions)
	}
	if len(res.Functions[0].Blocks) != 1 || res.Functions[0].Blocks[0] != 0x1000 {
		t.Fatalf("function blocks = %v, want [0x1000]", res.Functions[0].Blocks)
	}
	if ins, ok := res.Graph.InstructionAt(0x1000); !ok || !ins.IsPrologue {
		t.Fatal("entry instruction not flagged as a prologue")
	}
}

// TestRunThreadCountDoesNotChangeDiscoveredSet exercises spec.md §8
// property 8 (ordering irrelevance): the same program decoded with 1 and
// 16 workers discovers the same instruction addresses.
func TestRunThreadCountDoesNotChangeDiscoveredSet(t *testing.T) {
	code := []byte{
		0x55,                   // push rbp          @ +0
		0x48, 0x89, 0xe5,       // mov rbp,rsp        @ +1
		0xeb, 0x02,             // jmp +2 -> @ +8      @ +4
		0x90, 0x90,             // nop nop (skipped)   @ +6
		0xc3,                   // ret                 @ +8
	}
	dec, err := disasm.New(arch.AMD64)
	if err != nil {
		t.Fatal(err)
	}

	var addrSets [][]uint64
	for _, threads := range []int{1, 16} {
		img := newImage(t, 0x2000, code)
		w := New(img, dec, testConfig(threads, false))
		res, err := w.Run(context.Background(), nil)
		if err != nil {
			t.Fatal(err)
		}
		addrSets = append(addrSets, res.Graph.InstructionAddresses())
	}

	if len(addrSets[0]) != len(addrSets[1]) {
		t.Fatalf("thread=1 found %d addresses, thread=16 found %d", len(addrSets[0]), len(addrSets[1]))
	}
	for i := range addrSets[0] {
		if addrSets[0][i] != addrSets[1][i] {
			t.Fatalf("address set diverges at index %d: %#x vs %#x", i, addrSets[0][i], addrSets[1][i])
		}
	}
}
