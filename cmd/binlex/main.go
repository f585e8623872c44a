package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	cli "github.com/urfave/cli"

	"github.com/c3rb3ru5d3d53c/binlex-go/internal/config"
	"github.com/c3rb3ru5d3d53c/binlex-go/internal/emit"
	"github.com/c3rb3ru5d3d53c/binlex-go/internal/engine"
	"github.com/c3rb3ru5d3d53c/binlex-go/internal/hints"
)

var logger = log.New(os.Stderr, "binlex: ", 0)

func main() {
	app := cli.NewApp()
	app.Name = "binlex"
	app.Usage = "extract, hash, and emit trait signatures from a native binary"
	app.Version = version()
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "input", Usage: "file or directory to process (required)"},
		cli.StringFlag{Name: "output", Usage: "NDJSON output path (default: stdout)"},
		cli.StringFlag{Name: "config", Usage: "TOML config path (default: platform config dir)"},
		cli.IntFlag{Name: "threads", Usage: "worker pool size (overrides config)"},
		cli.StringFlag{Name: "tags", Usage: "comma-separated k:v pairs attached as tag attributes"},
		cli.BoolFlag{Name: "recursive", Usage: "when --input is a directory, descend into subdirectories"},
		cli.BoolFlag{Name: "minimal", Usage: "emit only architecture, type, address, bytes, size"},
		cli.BoolFlag{Name: "debug", Usage: "enable verbose logging"},
		cli.BoolFlag{Name: "disable-hashing", Usage: "disable sha256/tlsh/minhash across all sections"},
		cli.BoolFlag{Name: "disable-disassembler-sweep", Usage: "disable the linear sweep pass"},
		cli.BoolFlag{Name: "disable-heuristics", Usage: "disable feature/normalized/entropy across all sections"},
		cli.BoolFlag{Name: "enable-mmap-cache", Usage: "cache built images under --mmap-directory"},
		cli.StringFlag{Name: "mmap-directory", Usage: "directory for the on-disk image cache"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		logger.Println(err)
		os.Exit(1)
	}
}

func version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	return info.Main.Version
}

func run(c *cli.Context) error {
	input := c.String("input")
	if input == "" {
		return cli.NewExitError("binlex: --input is required", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	applyOverrides(cfg, c)

	if cfg.General.Debug {
		logger.SetFlags(log.Ltime)
		logger.Printf("config: threads=%d minimal=%v sweep=%v mmap=%v",
			cfg.General.Threads, cfg.General.Minimal, cfg.Disassembler.Sweep.Enabled, cfg.MMap.Cache.Enabled)
	}

	sink, closeSink, err := openOutput(c.String("output"))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer closeSink()

	writer := emit.New(sink)
	eng, err := engine.New(cfg, writer)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer eng.Close()

	hintFns := readHints()
	tags := parseTags(c.String("tags"))

	inputs, err := resolveInputs(input, c.Bool("recursive"))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	ctx := context.Background()
	for _, path := range inputs {
		if err := eng.ProcessFile(ctx, path, hintFns, tags); err != nil {
			logger.Printf("%s: %v", path, err)
			return cli.NewExitError("binlex: one or more inputs failed", 1)
		}
	}

	if err := writer.Flush(); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	return nil
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		return config.Load(path)
	}
	path, err := config.DefaultPath()
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

func applyOverrides(cfg *config.Config, c *cli.Context) {
	if c.IsSet("threads") {
		cfg.General.Threads = c.Int("threads")
	}
	if c.Bool("minimal") {
		cfg.General.Minimal = true
	}
	if c.Bool("debug") {
		cfg.General.Debug = true
	}
	if c.Bool("disable-disassembler-sweep") {
		cfg.Disassembler.Sweep.Enabled = false
	}
	if c.Bool("enable-mmap-cache") {
		cfg.MMap.Cache.Enabled = true
	}
	if dir := c.String("mmap-directory"); dir != "" {
		cfg.MMap.Directory = dir
	}
	if c.Bool("disable-hashing") {
		for _, s := range cfg.Sections() {
			s.Hashing.SHA256.Enabled = false
			s.Hashing.TLSH.Enabled = false
			s.Hashing.MinHash.Enabled = false
		}
	}
	if c.Bool("disable-heuristics") {
		for _, s := range cfg.Sections() {
			s.Heuristics.Features.Enabled = false
			s.Heuristics.Normalized.Enabled = false
			s.Heuristics.Entropy.Enabled = false
		}
	}
}

func openOutput(path string) (*os.File, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("binlex: create output %s: %w", path, err)
	}
	return f, func() { f.Close() }, nil
}

func readHints() []hints.Function {
	st, err := os.Stdin.Stat()
	if err != nil || (st.Mode()&os.ModeCharDevice) != 0 {
		return nil
	}
	fns, err := hints.Read(os.Stdin)
	if err != nil {
		logger.Printf("stdin hints: %v", err)
	}
	return fns
}

func parseTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair != "" {
			out = append(out, pair)
		}
	}
	return out
}

func resolveInputs(input string, recursive bool) ([]string, error) {
	st, err := os.Stat(input)
	if err != nil {
		return nil, fmt.Errorf("binlex: stat %s: %w", input, err)
	}
	if !st.IsDir() {
		return []string{input}, nil
	}

	var out []string
	walkFn := func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != input && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		out = append(out, path)
		return nil
	}
	if err := filepath.WalkDir(input, walkFn); err != nil {
		return nil, fmt.Errorf("binlex: walk %s: %w", input, err)
	}
	return out, nil
}
