package local

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidvella/xsort/recordio"
	"github.com/davidvella/xsort/run"
	"github.com/davidvella/xsort/runfile"
)

func setupTest(t *testing.T, opts ...Option) (*Storage, afero.Fs) {
	t.Helper()

	fs := afero.NewMemMapFs()
	s, err := NewStorage("/runs", append([]Option{WithFs(fs)}, opts...)...)
	require.NoError(t, err)
	return s, fs
}

func writeEntries(t *testing.T, s *Storage, entries []recordio.Entry) run.ID {
	t.Helper()

	w, err := s.Create(context.Background())
	require.NoError(t, err)
	for _, e := range entries {
		require.NoError(t, w.Write(e))
	}
	require.NoError(t, w.Close())
	return w.ID()
}

func readEntries(s *Storage, id run.ID) ([]recordio.Entry, error) {
	r, err := s.Open(context.Background(), id)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var got []recordio.Entry
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return got, nil
		}
		if err != nil {
			return got, err
		}
		got = append(got, e)
	}
}

func TestStorage_RoundTrip(t *testing.T) {
	entries := []recordio.Entry{
		{Key: 100, Data: []byte("hundred")},
		{Key: 50, Data: []byte("fifty")},
		{Key: 50, Data: []byte("fifty again")},
		{Key: -1, Data: []byte{}},
	}

	tests := []struct {
		name string
		opts []Option
	}{
		{name: "plain"},
		{name: "zstd", opts: []Option{WithCompression(CompressionZstd)}},
		{name: "small buffer", opts: []Option{WithBufferSize(16)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, fs := setupTest(t, tt.opts...)

			id := writeEntries(t, s, entries)
			exists, err := afero.Exists(fs, filepath.Join("/runs", string(id)+".run"))
			require.NoError(t, err)
			assert.True(t, exists)

			got, err := readEntries(s, id)
			require.NoError(t, err)
			assert.Equal(t, entries, got)
		})
	}
}

func TestStorage_EmptyRun(t *testing.T) {
	s, _ := setupTest(t)

	id := writeEntries(t, s, nil)
	got, err := readEntries(s, id)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStorage_List(t *testing.T) {
	s, fs := setupTest(t)
	ctx := context.Background()

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	a := writeEntries(t, s, []recordio.Entry{{Key: 1}})
	b := writeEntries(t, s, []recordio.Entry{{Key: 2}})
	require.NoError(t, afero.WriteFile(fs, "/runs/notes.txt", []byte("x"), 0o600))
	require.NoError(t, fs.MkdirAll("/runs/sub.run", 0o700))

	ids, err = s.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []run.ID{a, b}, ids)

	require.NoError(t, s.Remove(ctx, a))
	assert.Error(t, s.Remove(ctx, a))

	ids, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []run.ID{b}, ids)
}

func TestStorage_TruncatedRun(t *testing.T) {
	s, fs := setupTest(t)

	id := writeEntries(t, s, []recordio.Entry{
		{Key: 2, Data: []byte("two")},
		{Key: 1, Data: []byte("one")},
	})

	path := filepath.Join("/runs", string(id)+".run")
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, path, data[:len(data)-5], 0o600))

	got, err := readEntries(s, id)
	assert.ErrorIs(t, err, runfile.ErrCorruptedRun)
	assert.Len(t, got, 2)
}

func TestStorage_CorruptLength(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionZstd} {
		t.Run(c.String(), func(t *testing.T) {
			s, fs := setupTest(t, WithCompression(c))
			id := writeEntries(t, s, []recordio.Entry{{Key: 5, Data: []byte("five")}})

			path := filepath.Join("/runs", string(id)+".run")
			corrupt := bytes.Repeat([]byte{0xff}, 8)
			if c == CompressionNone {
				data, err := afero.ReadFile(fs, path)
				require.NoError(t, err)
				copy(data[runfile.HeaderSize+1+3+8:], corrupt)
				require.NoError(t, afero.WriteFile(fs, path, data, 0o600))
			} else {
				rewriteCompressed(t, fs, path, runfile.HeaderSize+1+3+8, corrupt)
			}

			got, err := readEntries(s, id)
			assert.ErrorIs(t, err, runfile.ErrCorruptedRun)
			assert.Empty(t, got)
		})
	}
}

// rewriteCompressed overwrites the decompressed bytes of a zstd run at off
// and compresses it again.
func rewriteCompressed(t *testing.T, fs afero.Fs, path string, off int64, b []byte) {
	t.Helper()

	raw, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	require.NoError(t, err)
	defer dec.Close()
	data, err := dec.DecodeAll(raw, nil)
	require.NoError(t, err)

	copy(data[off:], b)

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, path, enc.EncodeAll(data, nil), 0o600))
	require.NoError(t, enc.Close())
}

var errDiskFull = errors.New("disk full")

// failWritesFs opens files whose writes always fail.
type failWritesFs struct {
	afero.Fs
}

func (f failWritesFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	file, err := f.Fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return failWritesFile{file}, nil
}

type failWritesFile struct {
	afero.File
}

func (failWritesFile) Write([]byte) (int, error) {
	return 0, errDiskFull
}

func TestStorage_CreateFailureRemovesFile(t *testing.T) {
	mem := afero.NewMemMapFs()
	// A one byte buffer makes the header write reach the file at once.
	s, err := NewStorage("/runs", WithFs(failWritesFs{mem}), WithBufferSize(1))
	require.NoError(t, err)

	_, err = s.Create(context.Background())
	assert.ErrorIs(t, err, errDiskFull)

	entries, err := afero.ReadDir(mem, "/runs")
	require.NoError(t, err)
	assert.Empty(t, entries, "run file left behind")
}

func TestStorage_OpenMissing(t *testing.T) {
	s, _ := setupTest(t)

	_, err := s.Open(context.Background(), "missing")
	assert.Error(t, err)
}

func TestStorage_ReadOnlyFs(t *testing.T) {
	_, err := NewStorage("/runs", WithFs(afero.NewReadOnlyFs(afero.NewMemMapFs())))
	assert.Error(t, err)
}

func TestStorage_CancelledContext(t *testing.T) {
	s, _ := setupTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Create(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.Open(ctx, "any")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriterCloseIsIdempotent(t *testing.T) {
	s, _ := setupTest(t)

	w, err := s.Create(context.Background())
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Write(recordio.Entry{}), runfile.ErrRunClosed)
}

func TestParseCompression(t *testing.T) {
	tests := []struct {
		in      string
		want    Compression
		wantErr bool
	}{
		{in: "", want: CompressionNone},
		{in: "none", want: CompressionNone},
		{in: "ZSTD", want: CompressionZstd},
		{in: "gzip", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCompression(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got.String(), map[Compression]string{CompressionNone: "none", CompressionZstd: "zstd"}[got])
		})
	}
}
