// Package local implements run.Store with one file per run in a directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/davidvella/xsort/recordio"
	"github.com/davidvella/xsort/run"
	"github.com/davidvella/xsort/runfile"
)

const fileExt = ".run"

// Compression selects how run files are encoded on disk.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("Compression(%d)", int(c))
	}
}

// ParseCompression parses "none" or "zstd".
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("local: unknown compression %q", s)
	}
}

// Option configures a Storage.
type Option func(*Storage)

// WithCompression sets the encoding of new run files.
func WithCompression(c Compression) Option {
	return func(s *Storage) {
		s.compression = c
	}
}

// WithBufferSize sets the read and write buffer size per run file.
func WithBufferSize(n int) Option {
	return func(s *Storage) {
		if n > 0 {
			s.bufSize = n
		}
	}
}

// WithFs replaces the filesystem, mainly for tests.
func WithFs(fs afero.Fs) Option {
	return func(s *Storage) {
		s.fs = fs
	}
}

// Storage stores runs as files named <uuid>.run inside dir.
type Storage struct {
	fs          afero.Fs
	dir         string
	compression Compression
	bufSize     int
}

// NewStorage creates dir if needed. The OS filesystem is used unless
// WithFs is given.
func NewStorage(dir string, opts ...Option) (*Storage, error) {
	s := &Storage{
		fs:  afero.NewOsFs(),
		dir: dir,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.fs.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create run directory %s: %w", dir, err)
	}
	return s, nil
}

// Dir returns the directory holding the run files.
func (s *Storage) Dir() string {
	return s.dir
}

func (s *Storage) path(id run.ID) string {
	return filepath.Join(s.dir, string(id)+fileExt)
}

func (s *Storage) Create(ctx context.Context) (run.Writer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := run.ID(uuid.NewString())
	file, err := s.fs.OpenFile(s.path(id), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create run file %s: %w", id, err)
	}

	w := &writer{id: id, file: file}
	var sink io.Writer = file
	if s.compression == CompressionZstd {
		enc, err := zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedFastest), zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, s.discard(id, fmt.Errorf("failed to create zstd encoder: %w", err), w.closeFile())
		}
		w.enc = enc
		sink = enc
	}

	rw, err := runfile.NewWriter(sink, s.bufSize)
	if err != nil {
		return nil, s.discard(id, fmt.Errorf("run %s: %w", id, err), w.closeFile())
	}
	w.rw = rw
	return w, nil
}

// discard removes the file of a run whose writer could not be set up. The
// run was never handed out, so nobody else can release it.
func (s *Storage) discard(id run.ID, err, closeErr error) error {
	return multierr.Combine(err, closeErr, s.fs.Remove(s.path(id)))
}

func (s *Storage) Open(ctx context.Context, id run.ID) (run.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := s.fs.Open(s.path(id))
	if err != nil {
		return nil, fmt.Errorf("failed to open run file %s: %w", id, err)
	}

	r := &reader{file: file}
	var src io.Reader = file
	if s.compression == CompressionZstd {
		dec, err := zstd.NewReader(file, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("failed to create zstd decoder: %w", err), file.Close())
		}
		r.dec = dec
		src = dec
	}

	rr, err := runfile.NewReader(src, s.bufSize)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("run %s: %w", id, err), r.Close())
	}
	r.rr = rr
	return r, nil
}

func (s *Storage) Remove(_ context.Context, id run.ID) error {
	if err := s.fs.Remove(s.path(id)); err != nil {
		return fmt.Errorf("failed to delete run file %s: %w", id, err)
	}
	return nil
}

func (s *Storage) List(_ context.Context) ([]run.ID, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, err
	}

	var ids []run.ID
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != fileExt {
			continue
		}
		ids = append(ids, run.ID(strings.TrimSuffix(entry.Name(), fileExt)))
	}
	slices.Sort(ids)
	return ids, nil
}

type writer struct {
	id     run.ID
	file   afero.File
	enc    *zstd.Encoder
	rw     *runfile.Writer
	closed bool
}

func (w *writer) ID() run.ID {
	return w.id
}

func (w *writer) Write(e recordio.Entry) error {
	if w.closed {
		return runfile.ErrRunClosed
	}
	return w.rw.Write(e)
}

// Close seals the run and always releases the file handle.
func (w *writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.rw.Close()
	return multierr.Append(err, w.closeFile())
}

func (w *writer) closeFile() error {
	var err error
	if w.enc != nil {
		err = w.enc.Close()
	}
	return multierr.Append(err, w.file.Close())
}

type reader struct {
	file afero.File
	dec  *zstd.Decoder
	rr   *runfile.Reader
}

func (r *reader) Next() (recordio.Entry, error) {
	if r.rr == nil {
		return recordio.Entry{}, errors.New("local: reader closed")
	}
	return r.rr.Next()
}

func (r *reader) Close() error {
	if r.file == nil {
		return nil
	}
	if r.dec != nil {
		r.dec.Close()
	}
	err := r.file.Close()
	r.file, r.rr = nil, nil
	return err
}
