// Package config loads the vdup preferences file.
//
// Preferences live in a small TOML file; every field has a sensible
// default and CLI flags override file values. Byte sizes are written
// human-readable ("10MB", "64KiB") and parsed on load.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/pelletier/go-toml/v2"
)

// Config mirrors the preferences file.
type Config struct {
	// Extensions restricts scans; empty means the built-in video set
	// when video-only scanning is requested.
	Extensions []string `toml:"extensions"`
	// MinSize is the smallest file considered, human-readable.
	MinSize string `toml:"min_size"`
	// SampleWindow is the sampled fingerprint window size.
	SampleWindow string `toml:"sample_window"`
	// ChunkSize is the full-hash read granularity.
	ChunkSize string `toml:"chunk_size"`
	// Workers bounds pipeline parallelism; 0 means one per CPU.
	Workers int `toml:"workers"`
	// HashAlgorithm selects the strong hash ("blake3" or "sha256").
	HashAlgorithm string `toml:"hash_algorithm"`
	// CachePath enables the persistent hash cache when non-empty.
	CachePath string `toml:"cache_path"`
	// IndexPath locates the search index database.
	IndexPath string `toml:"index_path"`
	// NameSimilarity enables the lower-confidence name signal.
	NameSimilarity bool `toml:"name_similarity"`
	// DurationMatch enables the lower-confidence duration signal.
	DurationMatch bool `toml:"duration_match"`
	// FFprobe overrides the ffprobe binary path.
	FFprobe string `toml:"ffprobe"`
}

// Default returns the built-in preferences.
func Default() Config {
	return Config{
		MinSize:      "1",
		SampleWindow: "64KiB",
		ChunkSize:    "4MiB",
		IndexPath:    defaultIndexPath(),
	}
}

func defaultIndexPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vdup-index.db"
	}
	return filepath.Join(home, ".vdup", "index.db")
}

// Load reads path on top of the defaults. A missing file is not an
// error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	for _, field := range []struct{ name, value string }{
		{"min_size", c.MinSize},
		{"sample_window", c.SampleWindow},
		{"chunk_size", c.ChunkSize},
	} {
		if field.value == "" {
			continue
		}
		if _, err := humanize.ParseBytes(field.value); err != nil {
			return fmt.Errorf("%s %q: %w", field.name, field.value, err)
		}
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	return nil
}

// ParseSize parses a human-readable size string into bytes.
// Supports formats like "100", "1K", "1MB", "1GiB".
func ParseSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}
