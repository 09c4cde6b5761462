// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/ChloeTigre/wimlib/cmd/wim/cli"
	"github.com/ChloeTigre/wimlib/lib/compress"
	"github.com/ChloeTigre/wimlib/lib/dirtree"
	"github.com/ChloeTigre/wimlib/lib/wim"
)

// buildFlags are the knobs shared by create and append.
type buildFlags struct {
	codecName  string
	chunkSize  uint32
	threads    int
	integrity  bool
	pack       bool
	pipable    bool
	fsync      bool
	rebuild    bool
	recompress bool
	configPath string
}

func (b *buildFlags) register(flags *pflag.FlagSet) {
	flags.StringVar(&b.codecName, "compress", "lzx", "compression type (none, xpress, lzx, lzms)")
	flags.Uint32Var(&b.chunkSize, "chunk-size", 0, "uncompressed chunk size (0 = codec default)")
	flags.IntVar(&b.threads, "threads", 0, "compression worker threads (0 = one per CPU)")
	flags.BoolVar(&b.integrity, "check", false, "write an integrity table")
	flags.BoolVar(&b.pack, "solid", false, "pack small streams into solid resources")
	flags.BoolVar(&b.pipable, "pipable", false, "write the pipable layout")
	flags.BoolVar(&b.fsync, "fsync", false, "sync to stable storage before the header commit")
	flags.StringVar(&b.configPath, "compression-config", "", "YAML file with per-codec compression levels")
}

func (b *buildFlags) writeFlags() wim.WriteFlag {
	var flags wim.WriteFlag
	if b.integrity {
		flags |= wim.WriteCheckIntegrity
	}
	if b.pack {
		flags |= wim.WritePackStreams
	}
	if b.pipable {
		flags |= wim.WritePipable
	}
	if b.fsync {
		flags |= wim.WriteFsync
	}
	if b.rebuild {
		flags |= wim.WriteRebuild
	}
	if b.recompress {
		flags |= wim.WriteRecompress
	}
	return flags
}

func (b *buildFlags) options() (*wim.Options, error) {
	if b.configPath == "" {
		return nil, nil
	}
	cfg, err := compress.LoadConfig(b.configPath)
	if err != nil {
		return nil, err
	}
	return &wim.Options{Compression: cfg}, nil
}

// captureTree walks dir, ingesting every regular file as a stream
// and building the image's directory tree.
func captureTree(w *wim.WIM, dir string) (*dirtree.Tree, error) {
	tree := dirtree.NewRoot()
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return err
		}
		entry, err := w.WriteStream(f, info.Size())
		if err != nil {
			return err
		}
		_, err = tree.AddFile(filepath.ToSlash(rel), entry.Hash, uint64(info.Size()))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("capturing %s: %w", dir, err)
	}
	return tree, nil
}

func createCommand() *cli.Command {
	var build buildFlags
	return &cli.Command{
		Name:    "create",
		Summary: "create a new WIM from a directory",
		Usage:   "wim create <wimfile> <dir> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("create", pflag.ContinueOnError)
			build.register(flags)
			return flags
		},
		Examples: []cli.Example{
			{Description: "Capture a tree with LZX compression and an integrity table",
				Command: "wim create backup.wim /srv/data --check"},
		},
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("expected <wimfile> <dir>")
			}
			codec, err := compress.ParseCodecID(build.codecName)
			if err != nil {
				return err
			}
			opts, err := build.options()
			if err != nil {
				return err
			}

			w, err := wim.New(codec, build.chunkSize, opts)
			if err != nil {
				return err
			}
			defer w.Close()

			tree, err := captureTree(w, args[1])
			if err != nil {
				return err
			}
			if _, err := w.AddImage(tree); err != nil {
				return err
			}
			return w.Write(args[0], build.writeFlags(), build.threads)
		},
	}
}

func appendCommand() *cli.Command {
	var build buildFlags
	return &cli.Command{
		Name:    "append",
		Summary: "append a directory as a new image to an existing WIM",
		Usage:   "wim append <wimfile> <dir> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("append", pflag.ContinueOnError)
			build.register(flags)
			flags.BoolVar(&build.rebuild, "rebuild", false, "rebuild the whole file instead of appending")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("expected <wimfile> <dir>")
			}
			opts, err := build.options()
			if err != nil {
				return err
			}

			w, err := wim.Open(args[0], wim.OpenWriteAccess, opts)
			if err != nil {
				return err
			}
			defer w.Close()

			tree, err := captureTree(w, args[1])
			if err != nil {
				return err
			}
			if _, err := w.AddImage(tree); err != nil {
				return err
			}
			return w.Overwrite(build.writeFlags()|wim.WriteRetainGUID, build.threads)
		},
	}
}

func extractCommand() *cli.Command {
	return &cli.Command{
		Name:    "extract",
		Summary: "extract an image's files into a directory",
		Usage:   "wim extract <wimfile> <image> <dest>",
		Run: func(args []string) error {
			if len(args) != 3 {
				return fmt.Errorf("expected <wimfile> <image> <dest>")
			}
			var image int
			if _, err := fmt.Sscanf(args[1], "%d", &image); err != nil {
				return fmt.Errorf("image index %q: %w", args[1], err)
			}

			w, err := wim.Open(args[0], 0, nil)
			if err != nil {
				return err
			}
			defer w.Close()

			tree, err := w.ImageTree(image)
			if err != nil {
				return err
			}

			dest := args[2]
			var walkErr error
			var extract func(node *dirtree.Node, path string)
			extract = func(node *dirtree.Node, path string) {
				if walkErr != nil {
					return
				}
				target := filepath.Join(dest, path)
				if node.IsDirectory() {
					if path != "" {
						if err := os.MkdirAll(target, 0o755); err != nil {
							walkErr = err
							return
						}
					}
					for _, child := range node.Children {
						extract(child, filepath.Join(path, child.Name))
					}
					return
				}
				entry := w.Lookup(node.Hash)
				if entry == nil && !node.Hash.IsZero() {
					walkErr = fmt.Errorf("missing stream %s for %s", node.Hash, path)
					return
				}
				var data []byte
				if entry != nil {
					data, walkErr = w.StreamReader(entry)
					if walkErr != nil {
						return
					}
				}
				walkErr = os.WriteFile(target, data, 0o644)
			}
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return err
			}
			extract(tree.Root, "")
			return walkErr
		},
	}
}

func optimizeCommand() *cli.Command {
	var build buildFlags
	return &cli.Command{
		Name:    "optimize",
		Summary: "rebuild a WIM, recompressing and dropping dead space",
		Usage:   "wim optimize <wimfile> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("optimize", pflag.ContinueOnError)
			build.register(flags)
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one WIM file argument")
			}
			opts, err := build.options()
			if err != nil {
				return err
			}
			w, err := wim.Open(args[0], wim.OpenWriteAccess, opts)
			if err != nil {
				return err
			}
			defer w.Close()

			build.rebuild = true
			build.recompress = true
			return w.Overwrite(build.writeFlags()|wim.WriteRetainGUID, build.threads)
		},
	}
}
