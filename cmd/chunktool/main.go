// chunktool is a CLI utility for inspecting and rebuilding CryTek chunk files.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/chunkforge/internal/config"
	"github.com/Faultbox/chunkforge/internal/dump"
	"github.com/Faultbox/chunkforge/internal/logger"
	"github.com/Faultbox/chunkforge/internal/verify"
	"github.com/Faultbox/chunkforge/pkg/anim"
	"github.com/Faultbox/chunkforge/pkg/chunk"
	"github.com/Faultbox/chunkforge/pkg/model"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "info":
		cmdInfo(args)
	case "chunks", "ls":
		cmdChunks(args)
	case "verify":
		cmdVerify(args)
	case "model":
		cmdModel(args)
	case "anim":
		cmdAnim(args)
	case "rebuild":
		cmdRebuild(args)
	case "dump":
		cmdDump(args)
	case "config":
		cmdConfig(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`chunktool - CryTek chunk file utility

Usage:
  chunktool <command> [options]

Commands:
  info <file>              Show file type, version and chunk counts
  chunks <file>            List the chunk table
  verify <file>...         Decode, re-encode and compare each file
  model <file>             Summarize a geometry file
  anim <file>              List the clips of an animation file
  rebuild <in> <out>       Decode to a model or animation and write it back
  dump <in> <out>          Write a framed catalog of the chunks
  config [--save [path]]   Print the effective config, or write it

Options:
  -c, --config <path>      Config file
  -d, --debug              Debug logging
      --log-file <path>    Also log to a rotating file
      --palette-size <n>   Bones per mesh subset when rebuilding models
      --dump-format <f>    cbor or yaml
      --compress <c>       none, lz4 or zstd
      --strict             Compare padding bytes during verify

Examples:
  chunktool info objects/crate.cgf
  chunktool verify --strict *.cgf *.caf
  chunktool rebuild --palette-size 16 hero.chr hero_new.chr
  chunktool dump --dump-format yaml --compress none hero.chr hero.dump`)
}

// setup parses the command flags, loads the config and starts logging. It
// returns the positional arguments. extra registers command-specific flags.
func setup(name string, args []string, minArgs int, usage string, extra ...func(*pflag.FlagSet)) (*config.Config, []string) {
	fs := pflag.NewFlagSet(name, pflag.ExitOnError)
	var flags config.Flags
	flags.Register(fs)
	for _, register := range extra {
		register(fs)
	}
	fs.Parse(args)

	if fs.NArg() < minArgs {
		fmt.Fprintf(os.Stderr, "Usage: chunktool %s\n", usage)
		os.Exit(1)
	}

	cfg, err := config.Load(&flags)
	if err != nil {
		fail(err)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fail(err)
	}
	return cfg, fs.Args()
}

func fail(err error) {
	logger.Sync()
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func readContainer(path string) (*chunk.Container, []byte) {
	data, err := os.ReadFile(path)
	if err != nil {
		fail(err)
	}
	c, err := chunk.Decode(data)
	if err != nil {
		fail(fmt.Errorf("%s: %w", path, err))
	}
	return c, data
}

func cmdInfo(args []string) {
	_, args = setup("info", args, 1, "info <file>")
	defer logger.Sync()
	c, data := readContainer(args[0])

	slack := 0
	for _, r := range c.Slack() {
		slack += r.End - r.Start
	}

	fmt.Printf("File:    %s\n", args[0])
	fmt.Printf("Type:    %s\n", c.FileType)
	fmt.Printf("Version: %#x\n", c.FileVersion)
	fmt.Printf("Size:    %d bytes (%d slack)\n", len(data), slack)
	fmt.Printf("Chunks:  %d\n", c.Len())
	fmt.Printf("Digest:  %s\n", dump.Digest(data))
	fmt.Println()
	fmt.Println("Chunks by type:")

	typeCount := make(map[chunk.Type]int)
	for _, ch := range c.Chunks() {
		typeCount[ch.Kind().Type]++
	}
	types := make([]chunk.Type, 0, len(typeCount))
	for t := range typeCount {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, t := range types {
		fmt.Printf("  %-26s %d\n", t, typeCount[t])
	}
}

func cmdChunks(args []string) {
	_, args = setup("chunks", args, 1, "chunks <file>")
	defer logger.Sync()
	c, data := readContainer(args[0])

	fmt.Printf("%4s  %-26s %7s %8s %8s  %s\n", "ID", "TYPE", "VERSION", "OFFSET", "SIZE", "DIGEST")
	for _, ch := range c.Chunks() {
		h := ch.ChunkHeader()
		order := ""
		if h.BigEndian {
			order = " BE"
		}
		digest := dump.Digest(data[h.Offset : h.Offset+h.Size])
		fmt.Printf("%4d  %-26s %#7x %8d %8d  %s%s\n", h.ID, h.Type, h.Version, h.Offset, h.Size, digest[:16], order)
	}
}

func cmdVerify(args []string) {
	cfg, args := setup("verify", args, 1, "verify [--strict] <file>...")
	defer logger.Sync()

	reports := verify.Files(args, verify.Options{
		Strict:   cfg.Verify.Strict,
		Assemble: cfg.Verify.Assemble,
		MaxDiffs: cfg.Verify.MaxDiffs,
		Logger:   logger.Named("verify"),
	})

	failed := 0
	for _, rep := range reports {
		if !rep.OK() {
			failed++
			fmt.Printf("FAIL %s: %v\n", rep.Name, rep.Err)
			printDiffs(rep)
			continue
		}
		state := "identical"
		if !rep.Identical {
			state = fmt.Sprintf("equivalent, %d padding differences", len(rep.Diffs))
		}
		fmt.Printf("OK   %s (%s, %d chunks, %s)\n", rep.Name, rep.FileType, rep.Chunks, state)
		fmt.Printf("     in  %s\n     out %s\n", rep.InputDigest, rep.OutputDigest)
		if rep.Assembly != "" {
			fmt.Printf("     %s\n", rep.Assembly)
		}
	}
	logger.Info("verify finished", zap.Int("files", len(reports)), zap.Int("failed", failed))
	if failed > 0 {
		logger.Sync()
		os.Exit(1)
	}
}

func printDiffs(rep *verify.Report) {
	for _, d := range rep.Diffs {
		note := ""
		if d.Whitelisted {
			note = " (padding)"
		}
		fmt.Printf("     [%#x, %#x) chunk %d%s\n", d.Start, d.End, d.ChunkID, note)
	}
}

func cmdModel(args []string) {
	_, args = setup("model", args, 1, "model <file>")
	defer logger.Sync()
	c, _ := readContainer(args[0])

	m, err := model.Decode(c)
	if err != nil {
		fail(err)
	}

	fmt.Printf("Model:     %s\n", m.Name)
	fmt.Printf("Material:  %s (%d sub-materials)\n", m.Material, len(m.Materials))
	fmt.Printf("Skinned:   %v\n", m.Skinned())
	fmt.Println()
	fmt.Println("Meshes:")
	for i, mesh := range m.Meshes {
		fmt.Printf("  %2d  %-20s %6d vertices %6d triangles\n", i, mesh.Material, len(mesh.Vertices), mesh.Triangles())
	}

	if subsets, ok := chunk.First[*chunk.MeshSubsets](c); ok {
		fmt.Println()
		fmt.Println("Subsets:")
		for i, s := range subsets.Subsets {
			fmt.Printf("  %2d  material %2d  indices %6d+%-6d  %2d bones\n", i, s.MaterialID, s.FirstIndex, s.NumIndices, len(s.Bones))
		}
	}

	if m.Skinned() {
		fmt.Println()
		fmt.Println("Bones:")
		for i, b := range m.Bones {
			parent := "-"
			if b.Parent >= 0 {
				parent = m.Bones[b.Parent].Name
			}
			fmt.Printf("  %3d  %-24s parent %-24s controller %#x\n", i, b.Name, parent, b.ControllerID)
		}
	}
	if len(m.MorphTargets) > 0 || len(m.PhysicalBones) > 0 || len(m.Proxies) > 0 {
		fmt.Println()
		fmt.Printf("Morph targets: %d, physical bones: %d, proxies: %d\n", len(m.MorphTargets), len(m.PhysicalBones), len(m.Proxies))
	}
}

func cmdAnim(args []string) {
	_, args = setup("anim", args, 1, "anim <file>")
	defer logger.Sync()
	c, _ := readContainer(args[0])

	db, err := anim.Decode(c)
	if err != nil {
		fail(err)
	}

	fmt.Printf("Clips: %d\n", len(db.Clips))
	fmt.Println()
	for _, clip := range db.Clips {
		fmt.Printf("  %-32s %3d tracks  %v\n", clip.Name, len(clip.Tracks), clip.Duration())
	}
}

func cmdRebuild(args []string) {
	cfg, args := setup("rebuild", args, 2, "rebuild [--palette-size n] <in> <out>")
	defer logger.Sync()
	c, _ := readContainer(args[0])

	var out *chunk.Container
	var err error
	switch c.FileType {
	case chunk.FileGeometry:
		var m *model.Model
		m, err = model.Decode(c)
		if err == nil {
			out, err = model.Encode(m, model.Options{
				PaletteSize: cfg.Codec.PaletteSize,
				Logger:      logger.Named("model"),
			})
		}
	case chunk.FileAnimation:
		var db *anim.Database
		db, err = anim.Decode(c)
		if err == nil {
			out, err = anim.Encode(db)
		}
	}
	if err != nil {
		fail(err)
	}

	data, err := out.Encode()
	if err != nil {
		fail(err)
	}
	if err := os.WriteFile(args[1], data, 0644); err != nil {
		fail(err)
	}
	fmt.Printf("Rebuilt: %s (%d chunks, %d bytes)\n", args[1], out.Len(), len(data))
}

func cmdDump(args []string) {
	cfg, args := setup("dump", args, 2, "dump [--dump-format f] [--compress c] <in> <out>")
	defer logger.Sync()

	data, err := os.ReadFile(args[0])
	if err != nil {
		fail(err)
	}
	cat, err := dump.Build(data)
	if err != nil {
		fail(fmt.Errorf("%s: %w", args[0], err))
	}

	format, err := dump.ParseFormat(cfg.Dump.Format)
	if err != nil {
		fail(err)
	}
	comp, err := dump.ParseCompressionTag(cfg.Dump.Compression)
	if err != nil {
		fail(err)
	}
	framed, err := dump.Encode(cat, dump.Options{Format: format, Compression: comp})
	if err != nil {
		fail(err)
	}
	if err := os.WriteFile(args[1], framed, 0644); err != nil {
		fail(err)
	}

	h, _, err := dump.Open(framed)
	if err != nil {
		fail(err)
	}
	logger.Debug("dump written", zap.String("file", args[1]), zap.Stringer("format", h.Format), zap.Stringer("compression", h.Compression))
	fmt.Printf("Dumped: %s (%d chunks, %s, %s, %d -> %d bytes)\n", args[1], len(cat.Chunks), h.Format, h.Compression, h.Size, len(framed))
}

func cmdConfig(args []string) {
	var save bool
	cfg, args := setup("config", args, 0, "config [--save] [path]", func(fs *pflag.FlagSet) {
		fs.BoolVar(&save, "save", false, "write the effective config instead of printing it")
	})
	defer logger.Sync()

	if !save {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			fail(err)
		}
		os.Stdout.Write(data)
		return
	}

	path := filepath.Join(config.ConfigDir(), "config.yaml")
	var err error
	if len(args) > 0 {
		path = args[0]
		err = cfg.SaveTo(path)
	} else {
		err = cfg.Save()
	}
	if err != nil {
		fail(err)
	}
	fmt.Printf("Saved: %s\n", path)
}
