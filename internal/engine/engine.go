// Package engine orchestrates one input file through the full pipeline:
// Image → Walker/Disassembler/Graph → Chromosome → Hashing → Emitter
// (spec.md §2 "Data flow").
package engine

import (
	"context"
	"fmt"
	"os"

	lru "github.com/hashicorp/golang-lru"

	"github.com/c3rb3ru5d3d53c/binlex-go/internal/config"
	"github.com/c3rb3ru5d3d53c/binlex-go/internal/disasm"
	"github.com/c3rb3ru5d3d53c/binlex-go/internal/emit"
	"github.com/c3rb3ru5d3d53c/binlex-go/internal/genome"
	"github.com/c3rb3ru5d3d53c/binlex-go/internal/graph"
	"github.com/c3rb3ru5d3d53c/binlex-go/internal/hashing"
	"github.com/c3rb3ru5d3d53c/binlex-go/internal/hints"
	"github.com/c3rb3ru5d3d53c/binlex-go/internal/image"
	"github.com/c3rb3ru5d3d53c/binlex-go/internal/walker"
)

// imageCacheSize bounds the in-process dedup cache of already-built images
// for a batch run that sees the same sha256 more than once (SPEC_FULL.md §6).
const imageCacheSize = 32

// Engine runs one or more inputs against a single configuration and output
// sink.
type Engine struct {
	cfg    *config.Config
	out    *emit.Writer
	images *lru.Cache
	opened []*image.Image
}

// New builds an Engine writing to out under cfg.
func New(cfg *config.Config, out *emit.Writer) (*Engine, error) {
	cache, err := lru.New(imageCacheSize)
	if err != nil {
		return nil, fmt.Errorf("engine: create image cache: %w", err)
	}
	return &Engine{cfg: cfg, out: out, images: cache}, nil
}

// Close releases every image opened across this Engine's lifetime
// (closing any mmap cache backing), regardless of how many times a given
// sha256 was deduplicated from the in-process cache.
func (e *Engine) Close() error {
	var firstErr error
	for _, img := range e.opened {
		if err := img.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ProcessFile runs the full pipeline against one file: load or reuse its
// Image, walk it, and emit a genome per valid block and function.
// hintFns supplies externally provided function seeds (stdin NDJSON);
// tags becomes a "tag" attribute on every genome this file produces.
func (e *Engine) ProcessFile(ctx context.Context, path string, hintFns []hints.Function, tags []string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("engine: read %s: %w", path, err)
	}
	sum := hashing.SHA256(raw)

	var img *image.Image
	if cached, ok := e.images.Get(sum); ok {
		img = cached.(*image.Image)
	} else {
		img, err = image.FromBytes(raw, e.cfg)
		if err != nil {
			return fmt.Errorf("engine: load %s: %w", path, err)
		}
		e.images.Add(sum, img)
		e.opened = append(e.opened, img)
	}

	dec, err := disasm.New(img.Arch)
	if err != nil {
		return fmt.Errorf("engine: %s: %w", path, err)
	}

	hintVAs := make([]uint64, 0, len(hintFns))
	hintNames := map[uint64]string{}
	for _, h := range hintFns {
		hintVAs = append(hintVAs, h.Address)
		if h.Name != "" {
			hintNames[h.Address] = h.Name
		}
	}

	w := walker.New(img, dec, e.cfg)
	res, err := w.Run(ctx, hintVAs)
	if err != nil {
		return fmt.Errorf("engine: walk %s: %w", path, err)
	}

	fileAttr := genome.FileSummaryAttribute(genome.FileAttribute{
		SHA256: img.Summary.SHA256,
		TLSH:   img.Summary.TLSH,
		Size:   img.Summary.Size,
	})
	baseAttrs := []genome.Attribute{fileAttr}
	for _, t := range tags {
		baseAttrs = append(baseAttrs, genome.TagAttribute(t))
	}

	for _, start := range res.Graph.ValidBlockAddresses() {
		block, ok := graph.MaterializeBlock(res.Graph, start)
		if !ok {
			continue
		}
		g := buildBlockGenome(e.cfg, img.Arch, block, res.BlockFunctions[start], baseAttrs)
		if err := e.emit(g); err != nil {
			return err
		}
	}

	for _, fn := range res.Functions {
		blocks := make([]graph.Block, 0, len(fn.Blocks))
		for _, start := range fn.Blocks {
			if b, ok := graph.MaterializeBlock(res.Graph, start); ok {
				blocks = append(blocks, b)
			}
		}
		fv := graph.MaterializeFunction(fn.Entry, blocks)

		attrs := baseAttrs
		if name, ok := hintNames[fn.Entry]; ok {
			attrs = append(append([]genome.Attribute(nil), baseAttrs...), genome.SymbolAttribute(name))
		}

		g := buildFunctionGenome(e.cfg, img.Arch, fv, blocks, attrs)
		if err := e.emit(g); err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) emit(g genome.Genome) error {
	if e.cfg.General.Minimal {
		return e.out.Write(g.ToMinimal())
	}
	return e.out.Write(g)
}
