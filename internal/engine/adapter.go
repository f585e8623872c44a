package engine

import (
	"github.com/c3rb3ru5d3d53c/binlex-go/internal/chromosome"
	"github.com/c3rb3ru5d3d53c/binlex-go/internal/disasm"
	"github.com/c3rb3ru5d3d53c/binlex-go/internal/graph"
)

// blockChromosomeInput converts one materialized block's decoded
// instructions into the minimal shape chromosome.Build needs.
func blockChromosomeInput(b graph.Block) []chromosome.Instruction {
	return instructionsToChromosome(b.Instructions)
}

// functionChromosomeInput concatenates a function's owned blocks in
// ascending address order, per spec.md §4.5 ("concatenating block
// chromosomes in address order").
func functionChromosomeInput(blocks []graph.Block) []chromosome.Instruction {
	var out []chromosome.Instruction
	for _, b := range blocks {
		out = append(out, instructionsToChromosome(b.Instructions)...)
	}
	return out
}

func instructionsToChromosome(instrs []disasm.Instruction) []chromosome.Instruction {
	out := make([]chromosome.Instruction, len(instrs))
	for i, ins := range instrs {
		spans := make([]chromosome.Span, len(ins.Operands))
		for j, s := range ins.Operands {
			spans[j] = chromosome.Span{NibbleOffset: s.NibbleOffset, NibbleCount: s.NibbleCount}
		}
		out[i] = chromosome.Instruction{Bytes: ins.Bytes, OperandSpans: spans}
	}
	return out
}
