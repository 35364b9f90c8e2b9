// Package config loads the command line tool's settings from TOML or YAML
// and turns them into a run store and sorter options.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"sigs.k8s.io/yaml"

	"github.com/davidvella/xsort"
	"github.com/davidvella/xsort/merge"
	"github.com/davidvella/xsort/run"
	"github.com/davidvella/xsort/storage/local"
	"github.com/davidvella/xsort/storage/memory"
	"github.com/davidvella/xsort/storage/pebble"
)

// Backend names a run store implementation.
const (
	BackendFile   = "file"
	BackendPebble = "pebble"
	BackendMemory = "memory"
)

var ErrUnknownFormat = errors.New("config: unknown file format")

// Config holds the tool's settings. Empty fields take their defaults.
type Config struct {
	ChunkSize   int    `toml:"chunk-size" json:"chunk-size"`
	TempDir     string `toml:"temp-dir" json:"temp-dir"`
	Backend     string `toml:"backend" json:"backend"`
	Compression string `toml:"compression" json:"compression"`
	Frontier    string `toml:"frontier" json:"frontier"`
	// BufferSize is the per-file read and write buffer of the file backend.
	BufferSize string `toml:"buffer-size" json:"buffer-size"`
	// BatchSize is how much the pebble backend buffers before committing.
	BatchSize string `toml:"batch-size" json:"batch-size"`
	LogLevel  string `toml:"log-level" json:"log-level"`
}

func Default() Config {
	return Config{
		ChunkSize:   xsort.DefaultChunkSize,
		TempDir:     os.TempDir(),
		Backend:     BackendFile,
		Compression: local.CompressionNone.String(),
		Frontier:    merge.FrontierHeap.String(),
		BufferSize:  "64KiB",
		BatchSize:   "4MiB",
		LogLevel:    "info",
	}
}

// Load reads path over Default. The format follows the extension: .toml,
// or .yaml, .yml and .json.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	c := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		md, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&c)
		if err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("config: %s: unknown keys %v", path, undecoded)
		}
	case ".yaml", ".yml", ".json":
		if err := yaml.UnmarshalStrict(data, &c); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	default:
		return Config{}, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	return c, c.Validate()
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var err error
	if c.ChunkSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("config: chunk-size must be greater than 0, got %d", c.ChunkSize))
	}
	switch c.Backend {
	case "", BackendFile, BackendPebble, BackendMemory:
	default:
		err = multierr.Append(err, fmt.Errorf("config: unknown backend %q", c.Backend))
	}
	if _, e := local.ParseCompression(c.Compression); e != nil {
		err = multierr.Append(err, fmt.Errorf("config: %w", e))
	}
	if _, e := merge.ParseFrontierKind(c.Frontier); e != nil {
		err = multierr.Append(err, fmt.Errorf("config: %w", e))
	}
	if _, e := c.BufferBytes(); e != nil {
		err = multierr.Append(err, e)
	}
	if _, e := c.BatchBytes(); e != nil {
		err = multierr.Append(err, e)
	}
	if _, e := zap.ParseAtomicLevel(c.LogLevel); e != nil {
		err = multierr.Append(err, fmt.Errorf("config: log-level: %w", e))
	}
	return err
}

// BufferBytes parses BufferSize, such as "64KiB" or "1MB".
func (c Config) BufferBytes() (int, error) {
	return parseSize("buffer-size", c.BufferSize)
}

// BatchBytes parses BatchSize.
func (c Config) BatchBytes() (int, error) {
	return parseSize("batch-size", c.BatchSize)
}

// parseSize parses a human readable size. Empty means the backend default.
func parseSize(field, s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", field, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("config: %s must not be negative, got %q", field, s)
	}
	return int(n), nil
}

func (c Config) tempDir() string {
	if c.TempDir == "" {
		return os.TempDir()
	}
	return c.TempDir
}

// OpenStore opens the run store named by Backend. The close function
// releases whatever the store holds beyond its runs.
func (c Config) OpenStore() (run.Store, func() error, error) {
	nop := func() error { return nil }

	switch c.Backend {
	case BackendMemory:
		return memory.NewStorage(), nop, nil

	case BackendPebble:
		dir := filepath.Join(c.tempDir(), "xsort-"+uuid.NewString())
		batch, err := c.BatchBytes()
		if err != nil {
			return nil, nil, err
		}
		s, err := pebble.NewStorage(pebble.StorageOptions{Path: dir, BatchBytes: batch})
		if err != nil {
			return nil, nil, err
		}
		return s, func() error {
			return multierr.Append(s.Close(), os.RemoveAll(dir))
		}, nil

	case BackendFile, "":
		comp, err := local.ParseCompression(c.Compression)
		if err != nil {
			return nil, nil, err
		}
		buf, err := c.BufferBytes()
		if err != nil {
			return nil, nil, err
		}
		opts := []local.Option{local.WithCompression(comp)}
		if buf > 0 {
			opts = append(opts, local.WithBufferSize(buf))
		}
		s, err := local.NewStorage(filepath.Join(c.tempDir(), "xsort"), opts...)
		if err != nil {
			return nil, nil, err
		}
		return s, nop, nil

	default:
		return nil, nil, fmt.Errorf("config: unknown backend %q", c.Backend)
	}
}

// SorterOptions returns the sorter options for store and log.
func (c Config) SorterOptions(store run.Store, log *zap.Logger) ([]xsort.Option, error) {
	kind, err := merge.ParseFrontierKind(c.Frontier)
	if err != nil {
		return nil, err
	}
	return []xsort.Option{
		xsort.WithChunkSize(c.ChunkSize),
		xsort.WithStore(store),
		xsort.WithFrontier(kind),
		xsort.WithLogger(log),
	}, nil
}
