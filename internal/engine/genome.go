package engine

import (
	"encoding/hex"
	"fmt"

	"github.com/c3rb3ru5d3d53c/binlex-go/internal/arch"
	"github.com/c3rb3ru5d3d53c/binlex-go/internal/chromosome"
	"github.com/c3rb3ru5d3d53c/binlex-go/internal/config"
	"github.com/c3rb3ru5d3d53c/binlex-go/internal/genome"
	"github.com/c3rb3ru5d3d53c/binlex-go/internal/graph"
)

// buildChromosome runs the chromosome builder and layers on the
// chromosomes-section hashes, which are computed over the wildcarded
// pattern's ASCII bytes rather than the raw instruction bytes — the
// pattern, not the literal encoding, is the similarity trait (spec.md
// §4.6 "per chromosome ... stream"; see DESIGN.md for this resolution).
func buildChromosome(cfg *config.Config, instrs []chromosome.Instruction) (chromosome.Chromosome, genome.Chromosome) {
	c := chromosome.Build(instrs)
	h := computeHashes(cfg.Chromosomes, []byte(c.Pattern))

	var feature []int
	if cfg.Chromosomes.Heuristics.Features.Enabled {
		feature = c.Feature
	}

	return c, genome.Chromosome{
		Pattern: c.Pattern,
		Feature: feature,
		Entropy: h.Entropy,
		SHA256:  h.SHA256,
		MinHash: h.MinHash,
		TLSH:    h.TLSH,
	}
}

// buildBlockGenome assembles the full NDJSON record for one valid block.
func buildBlockGenome(
	cfg *config.Config,
	a arch.Architecture,
	block graph.Block,
	functionIndex map[uint64]int,
	attrs []genome.Attribute,
) genome.Genome {
	instrs := blockChromosomeInput(block)
	_, chromGenome := buildChromosome(cfg, instrs)

	raw := block.Bytes()
	h := computeHashes(cfg.Blocks, raw)

	var functions map[string]int
	for fn, idx := range functionIndex {
		if functions == nil {
			functions = map[string]int{}
		}
		functions[fmt.Sprintf("0x%x", fn)] = idx
	}

	return genome.Genome{
		Type:                 "block",
		Architecture:         a.String(),
		Address:              block.Start,
		Next:                 block.Next,
		To:                   block.To,
		Edges:                block.Edges,
		Prologue:             block.Prologue,
		Conditional:          block.Conditional,
		Chromosome:           chromGenome,
		Size:                 block.Size,
		Bytes:                hex.EncodeToString(raw),
		Functions:            functions,
		NumberOfInstructions: len(block.Instructions),
		Entropy:              h.Entropy,
		SHA256:               h.SHA256,
		MinHash:              h.MinHash,
		TLSH:                 h.TLSH,
		Contiguous:           block.Contiguous,
		Attributes:           attrs,
	}
}

// buildFunctionGenome assembles the full NDJSON record for one valid
// function, concatenating its owned blocks' bytes/chromosomes in address
// order (spec.md §4.5).
func buildFunctionGenome(
	cfg *config.Config,
	a arch.Architecture,
	fn graph.Function,
	blocks []graph.Block,
	attrs []genome.Attribute,
) genome.Genome {
	instrs := functionChromosomeInput(blocks)
	_, chromGenome := buildChromosome(cfg, instrs)

	var raw []byte
	var instructionCount int
	for _, b := range blocks {
		raw = append(raw, b.Bytes()...)
		instructionCount += len(b.Instructions)
	}
	h := computeHashes(cfg.Functions, raw)

	return genome.Genome{
		Type:                 "function",
		Architecture:         a.String(),
		Address:              fn.Entry,
		Blocks:               fn.Blocks,
		Edges:                fn.Edges,
		Prologue:             fn.Prologue,
		Chromosome:           chromGenome,
		Size:                 len(raw),
		Bytes:                hex.EncodeToString(raw),
		NumberOfInstructions: instructionCount,
		Entropy:              h.Entropy,
		SHA256:               h.SHA256,
		MinHash:              h.MinHash,
		TLSH:                 h.TLSH,
		Contiguous:           fn.Contiguous,
		Attributes:           attrs,
	}
}
