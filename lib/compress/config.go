// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/ChloeTigre/wimlib/lib/format"
)

// DefaultLevel is the compression level used when neither the caller
// nor the configuration specifies one. Scale: 10 = low, 50 = medium,
// 100 = high.
const DefaultLevel uint = 50

// Config carries the compression defaults threaded through the write
// planner. A WIM gets its Config at construction; there is no
// process-global level state.
type Config struct {
	// Levels maps codec ids to their default compression level on
	// the 10/50/100 scale. Codecs absent from the map use
	// DefaultLevel.
	Levels map[CodecID]uint

	// VerifyCompression round-trips every compressed block through a
	// decompressor before it is written. A mismatch aborts the write
	// with a corruption error. Expensive; intended for debugging
	// codec integrations.
	VerifyCompression bool

	// MaxThreads caps the parallel pipeline's worker count. Zero
	// means one worker per logical CPU.
	MaxThreads int
}

// DefaultConfig returns a Config with medium levels for every codec
// and verification off.
func DefaultConfig() *Config {
	return &Config{Levels: map[CodecID]uint{}}
}

// resolveLevel applies the level fallback chain: explicit level,
// configured default, DefaultLevel. A nil receiver is a valid empty
// configuration.
func (c *Config) resolveLevel(id CodecID, level uint) uint {
	if level != 0 {
		return level
	}
	if c != nil {
		if configured, ok := c.Levels[id]; ok && configured != 0 {
			return configured
		}
	}
	return DefaultLevel
}

// Threads resolves the worker count for a parallel write: requested
// if positive, else one per logical CPU, capped by MaxThreads.
func (c *Config) Threads(requested int) int {
	threads := requested
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if c != nil && c.MaxThreads > 0 && threads > c.MaxThreads {
		threads = c.MaxThreads
	}
	if threads < 1 {
		threads = 1
	}
	return threads
}

// configFile is the YAML schema for LoadConfig. Codec names use the
// String form ("xpress", "lzx", "lzms").
type configFile struct {
	Levels            map[string]uint `yaml:"levels"`
	VerifyCompression bool            `yaml:"verify_compression"`
	MaxThreads        int             `yaml:"max_threads"`
}

// LoadConfig reads a compression configuration from a YAML file.
//
//	levels:
//	  lzx: 80
//	  lzms: 100
//	verify_compression: false
//	max_threads: 8
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading compression config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses a YAML compression configuration.
func ParseConfig(data []byte) (*Config, error) {
	var file configFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing compression config: %w", err)
	}

	cfg := DefaultConfig()
	cfg.VerifyCompression = file.VerifyCompression
	cfg.MaxThreads = file.MaxThreads
	for name, level := range file.Levels {
		id, err := ParseCodecID(name)
		if err != nil {
			return nil, err
		}
		if id == None {
			return nil, fmt.Errorf("%w: cannot set a level for codec %q", format.ErrInvalidParam, name)
		}
		if level == 0 || level > 100 {
			return nil, fmt.Errorf("%w: level %d for codec %q is outside 1..100", format.ErrInvalidParam, level, name)
		}
		cfg.Levels[id] = level
	}
	return cfg, nil
}
