// Package config loads pdom.toml, the settings file of the pdom command.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"

	"pdom/internal/db"
	"pdom/internal/logging"
	"pdom/internal/trace"
)

// FileName is the name searched for by Find.
const FileName = "pdom.toml"

// MaxChunkSize bounds store.chunk_size; the header keeps one free list per
// block size, so it grows with the chunk.
const MaxChunkSize = 1 << 20

// Config is the content of pdom.toml.
type Config struct {
	Store StoreConfig `toml:"store"`
	Log   LogConfig   `toml:"log"`
	Trace TraceConfig `toml:"trace"`
}

type StoreConfig struct {
	Path      string `toml:"path"`
	ChunkSize int    `toml:"chunk_size"`
	Buckets   int    `toml:"buckets"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type TraceConfig struct {
	Level    string `toml:"level"`
	Mode     string `toml:"mode"`
	Format   string `toml:"format"`
	Output   string `toml:"output"`
	RingSize int    `toml:"ring_size"`
}

// Default returns the settings used when no pdom.toml exists.
func Default() Config {
	return Config{
		Store: StoreConfig{Path: "index.pdom", ChunkSize: db.DefaultChunkSize},
		Log:   LogConfig{Level: "warn", Format: "text"},
		Trace: TraceConfig{Level: "off", Mode: "stream", Format: "text", Output: "-"},
	}
}

// Find looks for pdom.toml in startDir and its parents.
func Find(fs afero.Fs, startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := fs.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load reads path over the defaults. A relative store.path is taken relative
// to the directory holding the file.
func Load(fs afero.Fs, path string) (Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	cfg := Default()
	meta, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if meta.IsDefined("store", "path") && cfg.Store.Path != "" && !filepath.IsAbs(cfg.Store.Path) {
		cfg.Store.Path = filepath.Join(filepath.Dir(path), cfg.Store.Path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Discover loads the nearest pdom.toml above startDir, or the defaults.
func Discover(fs afero.Fs, startDir string) (Config, string, error) {
	path, ok, err := Find(fs, startDir)
	if err != nil {
		return Config{}, "", err
	}
	if !ok {
		return Default(), "", nil
	}
	cfg, err := Load(fs, path)
	return cfg, path, err
}

// Validate checks every setting without touching the store.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Store.Path) == "" {
		errs = append(errs, errors.New("[store].path is empty"))
	}
	if cs := c.Store.ChunkSize; cs != 0 && (cs < db.MinChunkSize || cs > MaxChunkSize || cs%db.BlockSizeDelta != 0) {
		errs = append(errs, fmt.Errorf("[store].chunk_size %d: want a multiple of %d in [%d, %d]",
			cs, db.BlockSizeDelta, db.MinChunkSize, MaxChunkSize))
	}
	if c.Store.Buckets < 0 {
		errs = append(errs, fmt.Errorf("[store].buckets %d is negative", c.Store.Buckets))
	}
	if _, err := c.LogParameters(); err != nil {
		errs = append(errs, fmt.Errorf("[log]: %w", err))
	}
	if _, err := c.TraceConfig(); err != nil {
		errs = append(errs, fmt.Errorf("[trace]: %w", err))
	}
	if c.Trace.RingSize < 0 {
		errs = append(errs, fmt.Errorf("[trace].ring_size %d is negative", c.Trace.RingSize))
	}
	return errors.Join(errs...)
}

// LogParameters converts the [log] table.
func (c Config) LogParameters() (logging.Parameters, error) {
	return logging.ParseParameters(c.Log.Level, c.Log.Format)
}

// TraceConfig converts the [trace] table.
func (c Config) TraceConfig() (trace.Config, error) {
	level, err := trace.ParseLevel(c.Trace.Level)
	if err != nil {
		return trace.Config{}, err
	}
	mode, err := trace.ParseMode(c.Trace.Mode)
	if err != nil {
		return trace.Config{}, err
	}
	format, err := trace.ParseFormat(c.Trace.Format)
	if err != nil {
		return trace.Config{}, err
	}
	return trace.Config{
		Level:      level,
		Mode:       mode,
		Format:     format,
		OutputPath: c.Trace.Output,
		RingSize:   c.Trace.RingSize,
	}, nil
}
