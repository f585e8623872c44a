package chromosome

import (
	"reflect"
	"strings"
	"testing"
)

// TestBuildMatchesScenarioS1 reproduces spec.md §8 scenario S1: a 7-byte
// AMD64 run "4c 8b 47 08 49 8b c0" with an operand memory span at byte 3
// (both nibbles) of the first instruction.
func TestBuildMatchesScenarioS1(t *testing.T) {
	instrs := []Instruction{
		{
			Bytes:        []byte{0x4c, 0x8b, 0x47, 0x08},
			OperandSpans: []Span{{NibbleOffset: 6, NibbleCount: 2}},
		},
		{Bytes: []byte{0x49, 0x8b, 0xc0}},
	}

	c := Build(instrs)

	if c.Pattern != "4c8b47??498bc0" {
		t.Fatalf("pattern = %q, want %q", c.Pattern, "4c8b47??498bc0")
	}
	want := []int{4, 12, 8, 11, 4, 7, 4, 9, 8, 11, 12, 0}
	if !reflect.DeepEqual(c.Feature, want) {
		t.Fatalf("feature = %v, want %v", c.Feature, want)
	}
}

func TestChromosomeLengthLaw(t *testing.T) {
	instrs := []Instruction{
		{Bytes: []byte{0xde, 0xad, 0xbe, 0xef}, OperandSpans: []Span{{NibbleOffset: 2, NibbleCount: 4}}},
	}
	c := Build(instrs)
	if len(c.Pattern) != 2*len(c.Bytes) {
		t.Fatalf("len(pattern) = %d, want %d", len(c.Pattern), 2*len(c.Bytes))
	}
	wildcards := strings.Count(c.Pattern, "?")
	if wildcards != 4 {
		t.Fatalf("wildcard count = %d, want 4", wildcards)
	}
}

func TestFeatureExcludesWildcards(t *testing.T) {
	instrs := []Instruction{
		{Bytes: []byte{0xAB, 0xCD}, OperandSpans: []Span{{NibbleOffset: 1, NibbleCount: 2}}},
	}
	c := Build(instrs)
	// nibbles: A B C D ; wildcard covers indices 1,2 (B, C)
	if c.Pattern != "a??d" {
		t.Fatalf("pattern = %q, want %q", c.Pattern, "a??d")
	}
	if !reflect.DeepEqual(c.Feature, []int{0xA, 0xD}) {
		t.Fatalf("feature = %v, want [10 13]", c.Feature)
	}
}
