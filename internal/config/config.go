// Package config defines the engine's single immutable configuration value,
// assembled from built-in defaults, an optional TOML file, and CLI flag
// overrides. No component reads from global mutable state; every component
// that needs configuration is handed a *Config.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// HashSection holds the hashing/feature enable flags and bounds shared by
// the three NDJSON sections that carry them (blocks, functions,
// chromosomes) plus the file-level summary section.
type HashSection struct {
	SHA256 struct {
		Enabled bool `toml:"enabled"`
	} `toml:"sha256"`
	TLSH struct {
		Enabled         bool `toml:"enabled"`
		MinimumByteSize int  `toml:"minimum_byte_size"`
	} `toml:"tlsh"`
	MinHash struct {
		Enabled         bool   `toml:"enabled"`
		NumberOfHashes  int    `toml:"number_of_hashes"`
		ShingleSize     int    `toml:"shingle_size"`
		MaximumByteSize int    `toml:"maximum_byte_size"`
		Seed            uint64 `toml:"seed"`
	} `toml:"minhash"`
}

// HeuristicsSection holds the feature-vector/entropy enable flags for a
// section.
type HeuristicsSection struct {
	Features struct {
		Enabled bool `toml:"enabled"`
	} `toml:"features"`
	Normalized struct {
		Enabled bool `toml:"enabled"`
	} `toml:"normalized"`
	Entropy struct {
		Enabled bool `toml:"enabled"`
	} `toml:"entropy"`
}

// Section bundles the hashing and heuristics config for one NDJSON section
// kind (file, blocks, functions, chromosomes).
type Section struct {
	Hashing    HashSection       `toml:"hashing"`
	Heuristics HeuristicsSection `toml:"heuristics"`
}

// Config is the fully-resolved, immutable configuration for one engine run.
type Config struct {
	General struct {
		Threads int  `toml:"threads"`
		Minimal bool `toml:"minimal"`
		Debug   bool `toml:"debug"`
	} `toml:"general"`

	Formats struct {
		File Section `toml:"file"`
	} `toml:"formats"`

	Blocks      Section `toml:"blocks"`
	Functions   Section `toml:"functions"`
	Chromosomes Section `toml:"chromosomes"`

	MMap struct {
		Directory string `toml:"directory"`
		Cache     struct {
			Enabled bool `toml:"enabled"`
		} `toml:"cache"`
	} `toml:"mmap"`

	Disassembler struct {
		Sweep struct {
			Enabled bool `toml:"enabled"`
		} `toml:"sweep"`
	} `toml:"disassembler"`
}

// Sections returns pointers to every hashing/heuristics section this
// config carries, for callers that apply a blanket override (e.g. the CLI's
// --disable-hashing) across all of them.
func (c *Config) Sections() []*Section {
	return []*Section{&c.Formats.File, &c.Blocks, &c.Functions, &c.Chromosomes}
}

func defaultSection(minTLSH, maxMinHash int) Section {
	var s Section
	s.Hashing.SHA256.Enabled = true
	s.Hashing.TLSH.Enabled = true
	s.Hashing.TLSH.MinimumByteSize = minTLSH
	s.Hashing.MinHash.Enabled = true
	s.Hashing.MinHash.NumberOfHashes = 32
	s.Hashing.MinHash.ShingleSize = 4
	s.Hashing.MinHash.MaximumByteSize = maxMinHash
	s.Hashing.MinHash.Seed = 0
	s.Heuristics.Features.Enabled = true
	s.Heuristics.Normalized.Enabled = true
	s.Heuristics.Entropy.Enabled = true
	return s
}

// Default returns the built-in configuration, matching spec.md §6's
// documented defaults (tlsh.minimum_byte_size = 50, minhash.maximum_byte_size
// = 50).
func Default() *Config {
	c := &Config{}
	c.General.Threads = 1
	c.Formats.File = defaultSection(50, 50)
	c.Blocks = defaultSection(50, 50)
	c.Functions = defaultSection(50, 50)
	c.Chromosomes = defaultSection(50, 50)
	c.Disassembler.Sweep.Enabled = true
	c.MMap.Cache.Enabled = false
	return c
}

// Load reads a TOML file at path and merges it over Default(). A missing
// path is not an error; Default() is returned unchanged.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return c, nil
	}
	if _, err := toml.DecodeFile(path, c); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return c, nil
}

// DefaultPath returns the platform-appropriate location for the default
// config file, writing it on first run (spec.md §6: "Default config is
// written to a platform-appropriate config directory on first run.").
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve config directory: %w", err)
	}
	dir = filepath.Join(dir, "binlex")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("config: create config directory: %w", err)
	}
	path := filepath.Join(dir, "binlex.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := WriteDefault(path); err != nil {
			return "", err
		}
	}
	return path, nil
}

// WriteDefault encodes Default() to path, creating parent directories as
// needed.
func WriteDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()
	enc := toml.NewEncoder(f)
	if err := enc.Encode(Default()); err != nil {
		return fmt.Errorf("config: encode default config: %w", err)
	}
	return nil
}
