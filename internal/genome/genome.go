// Package genome defines the NDJSON record emitted for one valid block or
// function (spec.md §3, §6). A Genome is built once, serialized, and
// dropped; it is never mutated after construction.
package genome

// Chromosome is the wire shape of a derived trait pattern.
type Chromosome struct {
	Pattern string   `json:"pattern"`
	Feature []int    `json:"feature"`
	Entropy *float64 `json:"entropy"`
	SHA256  *string  `json:"sha256"`
	MinHash *string  `json:"minhash"`
	TLSH    *string  `json:"tlsh"`
}

// FileAttribute is the "file" attribute kind: the input's own hash summary.
type FileAttribute struct {
	SHA256 string `json:"sha256"`
	TLSH   string `json:"tlsh,omitempty"`
	Size   int    `json:"size"`
}

// Attribute is one entry of a genome's heterogeneous, ordered attribute
// list. Exactly one of Tag, File, Symbol is set, matching the attribute's
// Type.
type Attribute struct {
	Type   string         `json:"type"`
	Tag    string         `json:"tag,omitempty"`
	File   *FileAttribute `json:"file,omitempty"`
	Symbol string         `json:"symbol,omitempty"`
}

// TagAttribute builds a "tag" attribute from a CLI --tags key:value pair.
func TagAttribute(value string) Attribute { return Attribute{Type: "tag", Tag: value} }

// FileSummaryAttribute builds a "file" attribute.
func FileSummaryAttribute(f FileAttribute) Attribute { return Attribute{Type: "file", File: &f} }

// SymbolAttribute builds a "symbol" attribute from a stdin function hint's
// optional name field (SPEC_FULL.md §10 supplement).
func SymbolAttribute(name string) Attribute { return Attribute{Type: "symbol", Symbol: name} }

// Genome is the full (non-minimal) NDJSON record for a block or function.
// Field order matches spec.md §6's documented schema.
type Genome struct {
	Type                 string         `json:"type"`
	Architecture         string         `json:"architecture"`
	Address              uint64         `json:"address"`
	Next                 *uint64        `json:"next,omitempty"`
	To                   []uint64       `json:"to,omitempty"`
	Blocks               []uint64       `json:"blocks,omitempty"`
	Edges                int            `json:"edges"`
	Prologue             bool           `json:"prologue"`
	Conditional          bool           `json:"conditional,omitempty"`
	Chromosome           Chromosome     `json:"chromosome"`
	Size                 int            `json:"size"`
	Bytes                string         `json:"bytes"`
	Functions            map[string]int `json:"functions,omitempty"`
	NumberOfInstructions int            `json:"number_of_instructions"`
	Entropy              *float64       `json:"entropy"`
	SHA256               *string        `json:"sha256"`
	MinHash              *string        `json:"minhash"`
	TLSH                 *string        `json:"tlsh"`
	Contiguous           bool           `json:"contiguous"`
	Attributes           []Attribute    `json:"attributes,omitempty"`
}

// Minimal is the reduced record produced under --minimal: architecture,
// type, address, bytes, size only (spec.md §4.7).
type Minimal struct {
	Type         string `json:"type"`
	Architecture string `json:"architecture"`
	Address      uint64 `json:"address"`
	Bytes        string `json:"bytes"`
	Size         int    `json:"size"`
}

// ToMinimal projects a full Genome down to its --minimal fields.
func (g Genome) ToMinimal() Minimal {
	return Minimal{
		Type:         g.Type,
		Architecture: g.Architecture,
		Address:      g.Address,
		Bytes:        g.Bytes,
		Size:         g.Size,
	}
}
