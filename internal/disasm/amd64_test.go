package disasm

import (
	"testing"

	"github.com/c3rb3ru5d3d53c/binlex-go/internal/arch"
	"github.com/c3rb3ru5d3d53c/binlex-go/internal/image"
)

func newImage(t *testing.T, base uint64, data []byte) *image.Image {
	t.Helper()
	buf := make([]byte, len(data)+16)
	copy(buf, data)
	return &image.Image{Arch: arch.AMD64, Base: base, Bytes: buf}
}

// TestAMD64OperandSpanDisp8 exercises scenario S1: "4c 8b 47 08 49 8b c0"
// should wildcard the disp8 byte at stream offset 3.
func TestAMD64OperandSpanDisp8(t *testing.T) {
	data := []byte{0x4c, 0x8b, 0x47, 0x08, 0x49, 0x8b, 0xc0}
	img := newImage(t, 0x1000, data)
	d, err := New(arch.AMD64)
	if err != nil {
		t.Fatal(err)
	}

	ins, err := d.Decode(img, 0x1000)
	if err != nil {
		t.Fatalf("decode first instruction: %v", err)
	}
	if ins.Size != 4 {
		t.Fatalf("first instruction size = %d, want 4", ins.Size)
	}
	if len(ins.Operands) != 1 {
		t.Fatalf("operand spans = %v, want 1 span", ins.Operands)
	}
	if ins.Operands[0].NibbleOffset != 6 || ins.Operands[0].NibbleCount != 2 {
		t.Fatalf("span = %+v, want {NibbleOffset:6 NibbleCount:2}", ins.Operands[0])
	}

	second, err := d.Decode(img, 0x1000+uint64(ins.Size))
	if err != nil {
		t.Fatalf("decode second instruction: %v", err)
	}
	if second.Size != 3 {
		t.Fatalf("second instruction size = %d, want 3", second.Size)
	}
	if len(second.Operands) != 0 {
		t.Fatalf("second instruction should have no memory operand spans, got %v", second.Operands)
	}
}

// TestAMD64IndirectCallTerminatesBlock exercises scenario S3: "ff 15
// <disp32>" (call qword ptr [rip+disp32]) is an indirect call with no
// concrete targets and no inferred fall-through beyond what classify sets.
func TestAMD64IndirectCallTerminatesBlock(t *testing.T) {
	data := []byte{0xff, 0x15, 0x01, 0x02, 0x03, 0x04}
	img := newImage(t, 0x2000, data)
	d, err := New(arch.AMD64)
	if err != nil {
		t.Fatal(err)
	}
	ins, err := d.Decode(img, 0x2000)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ins.Class != Call {
		t.Fatalf("class = %v, want Call", ins.Class)
	}
	if !ins.Edges.Indirect {
		t.Fatalf("Edges.Indirect = false, want true")
	}
	if len(ins.Edges.Calls) != 0 {
		t.Fatalf("Edges.Calls = %v, want empty (indirect)", ins.Edges.Calls)
	}
	if ins.Edges.FallThrough != nil {
		t.Fatalf("Edges.FallThrough = %v, want nil (indirect terminates the block)", *ins.Edges.FallThrough)
	}
}

func TestAMD64PrologueDetection(t *testing.T) {
	// push rbp; mov rbp, rsp
	data := []byte{0x55, 0x48, 0x89, 0xe5}
	img := newImage(t, 0x3000, data)
	d, err := New(arch.AMD64)
	if err != nil {
		t.Fatal(err)
	}
	ins, err := d.Decode(img, 0x3000)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !ins.IsPrologue {
		t.Fatalf("IsPrologue = false, want true for push rbp; mov rbp,rsp")
	}
}
