// Package chromosome derives the wildcarded nibble pattern, gene vector, and
// feature vector for a run of instructions (spec.md §4.5). A gene is one
// nibble (0-15, or a wildcard sentinel); an allele pair is two consecutive
// genes; a chromosome is the whole sequence.
package chromosome

const hexDigits = "0123456789abcdef"

// Wildcard is the gene-vector sentinel for a wildcarded nibble.
const Wildcard = -1

// Instruction is the minimal shape chromosome.Build needs from a decoded
// instruction: its bytes and the nibble-resolution operand spans to
// wildcard, both relative to the instruction's own start.
type Instruction struct {
	Bytes        []byte
	OperandSpans []Span
}

// Span is a nibble-resolution interval within one instruction's bytes.
type Span struct {
	NibbleOffset int
	NibbleCount  int
}

// Chromosome is the derived trait pattern for a sequence of instructions.
type Chromosome struct {
	Bytes   []byte
	Pattern string
	Genes   []int // len == 2*len(Bytes); Wildcard or 0-15
	Feature []int // Genes with Wildcard entries removed
}

// Build concatenates instrs' bytes in order and wildcards every recorded
// operand span at nibble resolution (spec.md §4.5, §9 "Nibble operands").
func Build(instrs []Instruction) Chromosome {
	var totalBytes int
	for _, ins := range instrs {
		totalBytes += len(ins.Bytes)
	}

	out := make([]byte, 0, totalBytes)
	genes := make([]int, 0, totalBytes*2)
	wildcard := make([]bool, totalBytes*2)

	cursorNibble := 0
	for _, ins := range instrs {
		out = append(out, ins.Bytes...)
		for _, b := range ins.Bytes {
			genes = append(genes, int(b>>4), int(b&0x0F))
		}
		for _, span := range ins.OperandSpans {
			for i := 0; i < span.NibbleCount; i++ {
				idx := cursorNibble + span.NibbleOffset + i
				if idx >= 0 && idx < len(wildcard) {
					wildcard[idx] = true
				}
			}
		}
		cursorNibble += len(ins.Bytes) * 2
	}

	pattern := make([]byte, len(genes))
	feature := make([]int, 0, len(genes))
	final := make([]int, len(genes))
	for i, g := range genes {
		if wildcard[i] {
			pattern[i] = '?'
			final[i] = Wildcard
			continue
		}
		pattern[i] = hexDigits[g]
		final[i] = g
		feature = append(feature, g)
	}

	return Chromosome{
		Bytes:   out,
		Pattern: string(pattern),
		Genes:   final,
		Feature: feature,
	}
}
