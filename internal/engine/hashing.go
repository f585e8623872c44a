package engine

import (
	"github.com/c3rb3ru5d3d53c/binlex-go/internal/config"
	"github.com/c3rb3ru5d3d53c/binlex-go/internal/hashing"
)

// hashResult is the set of per-section hash/feature outputs, any of which
// may be nil when disabled or out of bounds (spec.md §4.6).
type hashResult struct {
	Entropy *float64
	SHA256  *string
	MinHash *string
	TLSH    *string
}

// computeHashes applies section's enable flags and size bounds to data,
// matching spec.md §4.6 and testable property 6/S6 (below-minimum TLSH is
// null without affecting sha256/minhash).
func computeHashes(section config.Section, data []byte) hashResult {
	var r hashResult

	if section.Heuristics.Entropy.Enabled {
		e := hashing.Entropy(data)
		r.Entropy = &e
	}
	if section.Hashing.SHA256.Enabled {
		s := hashing.SHA256(data)
		r.SHA256 = &s
	}
	if section.Hashing.TLSH.Enabled && len(data) >= section.Hashing.TLSH.MinimumByteSize {
		if t := hashing.TLSH(data); t != "" {
			r.TLSH = &t
		}
	}
	mh := section.Hashing.MinHash
	if mh.Enabled && len(data) <= mh.MaximumByteSize {
		m := hashing.MinHash(data, mh.NumberOfHashes, mh.ShingleSize, mh.Seed)
		r.MinHash = &m
	}
	return r
}
