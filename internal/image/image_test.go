package image

import (
	"reflect"
	"testing"

	"github.com/c3rb3ru5d3d53c/binlex-go/internal/arch"
)

func TestDedupeSorted(t *testing.T) {
	got := dedupeSorted([]uint64{5, 1, 5, 3, 1, 2})
	want := []uint64{1, 2, 3, 5}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("dedupeSorted = %v, want %v", got, want)
	}
}

func TestAlignUp(t *testing.T) {
	cases := []struct{ v, align, want uint64 }{
		{0, pageSize, 0},
		{1, pageSize, pageSize},
		{pageSize, pageSize, pageSize},
		{pageSize + 1, pageSize, 2 * pageSize},
	}
	for _, c := range cases {
		if got := alignUp(c.v, c.align); got != c.want {
			t.Fatalf("alignUp(%d,%d) = %d, want %d", c.v, c.align, got, c.want)
		}
	}
}

func TestGrowBuffer(t *testing.T) {
	dst := make([]byte, 4)
	grown := growBuffer(dst, 2, 8)
	if len(grown) != 10 {
		t.Fatalf("len(grown) = %d, want 10", len(grown))
	}
}

func TestImageTranslateAndInRange(t *testing.T) {
	img := &Image{
		Arch: arch.AMD64,
		Base: 0x1000,
		Bytes: make([]byte, 0x2000),
		Ranges: []Range{
			{Start: 0x1000, End: 0x1800, Executable: true},
			{Start: 0x1800, End: 0x3000, Executable: false},
		},
	}

	off, ok := img.Translate(0x1200)
	if !ok || off != 0x200 {
		t.Fatalf("Translate(0x1200) = (%d,%v), want (0x200,true)", off, ok)
	}
	if _, ok := img.Translate(0x0FFF); ok {
		t.Fatalf("Translate(below base) should fail")
	}
	if !img.InRange(0x1200) {
		t.Fatalf("InRange(0x1200) = false, want true")
	}
	if img.InRange(0x1900) {
		t.Fatalf("InRange(0x1900) = true, want false (non-executable range)")
	}
	if img.InRange(0x5000) {
		t.Fatalf("InRange(beyond all ranges) = true, want false")
	}
}
