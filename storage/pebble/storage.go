// Package pebble implements run.Store on top of a Pebble key-value store.
//
// Each run occupies the key range "r/<id>/" followed by a big-endian entry
// sequence number, so a prefix scan returns the entries in write order. A
// metadata key "m/<id>" makes runs visible to List from the moment they are
// created.
package pebble

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/davidvella/xsort/recordio"
	"github.com/davidvella/xsort/run"
)

const (
	dataPrefix = "r/"
	metaPrefix = "m/"

	stateOpen   byte = 0
	stateSealed byte = 1

	defaultBatchBytes = 4 << 20
)

var ErrNotSealed = errors.New("pebble: run is not sealed")

// StorageOptions configures the underlying database.
type StorageOptions struct {
	Path         string
	FS           vfs.FS
	CacheSize    int64
	MaxOpenFiles int
	// BatchBytes is the batch size at which a run writer commits.
	BatchBytes int
}

// Storage keeps runs in a Pebble database it owns.
type Storage struct {
	db         *pebble.DB
	batchBytes int
}

func NewStorage(opts StorageOptions) (*Storage, error) {
	pebbleOpts := &pebble.Options{
		FS:           opts.FS,
		MaxOpenFiles: opts.MaxOpenFiles,
	}
	if opts.CacheSize > 0 {
		cache := pebble.NewCache(opts.CacheSize)
		defer cache.Unref()
		pebbleOpts.Cache = cache
	}

	db, err := pebble.Open(opts.Path, pebbleOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", opts.Path, err)
	}

	batchBytes := opts.BatchBytes
	if batchBytes <= 0 {
		batchBytes = defaultBatchBytes
	}
	return &Storage{db: db, batchBytes: batchBytes}, nil
}

func (p *Storage) Close() error {
	return p.db.Close()
}

func metaKey(id run.ID) []byte {
	return append([]byte(metaPrefix), id...)
}

func runPrefix(id run.ID) []byte {
	k := append([]byte(dataPrefix), id...)
	return append(k, '/')
}

func entryKey(prefix []byte, seq uint64) []byte {
	k := make([]byte, len(prefix)+8)
	copy(k, prefix)
	binary.BigEndian.PutUint64(k[len(prefix):], seq)
	return k
}

// prefixEnd returns the smallest key greater than every key with prefix.
func prefixEnd(prefix []byte) []byte {
	end := slices.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

func (p *Storage) Create(ctx context.Context) (run.Writer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := run.ID(uuid.NewString())
	if err := p.db.Set(metaKey(id), []byte{stateOpen}, pebble.NoSync); err != nil {
		return nil, fmt.Errorf("failed to register run %s: %w", id, err)
	}

	return &writer{
		store:  p,
		id:     id,
		prefix: runPrefix(id),
		batch:  p.db.NewBatch(),
	}, nil
}

func (p *Storage) Open(ctx context.Context, id run.ID) (run.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	state, closer, err := p.db.Get(metaKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("run %s: %w", id, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	sealed := len(state) == 1 && state[0] == stateSealed
	if err := closer.Close(); err != nil {
		return nil, err
	}
	if !sealed {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotSealed)
	}

	prefix := runPrefix(id)
	it, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate over run %s: %w", id, err)
	}
	it.First()
	return &reader{it: it}, nil
}

func (p *Storage) Remove(_ context.Context, id run.ID) error {
	batch := p.db.NewBatch()
	defer batch.Close()

	prefix := runPrefix(id)
	if err := batch.DeleteRange(prefix, prefixEnd(prefix), nil); err != nil {
		return err
	}
	if err := batch.Delete(metaKey(id), nil); err != nil {
		return err
	}
	return batch.Commit(pebble.NoSync)
}

func (p *Storage) List(_ context.Context) ([]run.ID, error) {
	prefix := []byte(metaPrefix)
	it, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var ids []run.ID
	for it.First(); it.Valid(); it.Next() {
		ids = append(ids, run.ID(bytes.TrimPrefix(it.Key(), prefix)))
	}
	return ids, it.Error()
}

type writer struct {
	store  *Storage
	id     run.ID
	prefix []byte
	batch  *pebble.Batch
	seq    uint64
	buf    bytes.Buffer
	closed bool
}

func (w *writer) ID() run.ID {
	return w.id
}

func (w *writer) Write(e recordio.Entry) error {
	if w.closed {
		return errors.New("pebble: run already closed")
	}

	w.buf.Reset()
	if _, err := recordio.Write(&w.buf, e); err != nil {
		return err
	}
	if err := w.batch.Set(entryKey(w.prefix, w.seq), w.buf.Bytes(), nil); err != nil {
		return err
	}
	w.seq++

	if w.batch.Len() >= w.store.batchBytes {
		if err := w.batch.Commit(pebble.NoSync); err != nil {
			return fmt.Errorf("failed to commit batch: %w", err)
		}
		if err := w.batch.Close(); err != nil {
			return err
		}
		w.batch = w.store.db.NewBatch()
	}
	return nil
}

// Close commits pending entries and marks the run sealed in the same batch.
func (w *writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.batch.Set(metaKey(w.id), []byte{stateSealed}, nil)
	if err == nil {
		err = w.batch.Commit(pebble.NoSync)
	}
	return multierr.Append(err, w.batch.Close())
}

type reader struct {
	it *pebble.Iterator
}

func (r *reader) Next() (recordio.Entry, error) {
	if r.it == nil {
		return recordio.Entry{}, errors.New("pebble: reader closed")
	}
	if !r.it.Valid() {
		if err := r.it.Error(); err != nil {
			return recordio.Entry{}, err
		}
		return recordio.Entry{}, io.EOF
	}

	e, err := recordio.ReadEntry(bytes.NewReader(r.it.Value()))
	if err != nil {
		return recordio.Entry{}, fmt.Errorf("pebble: corrupt entry: %w", err)
	}
	r.it.Next()
	return e, nil
}

func (r *reader) Close() error {
	if r.it == nil {
		return nil
	}
	err := r.it.Close()
	r.it = nil
	return err
}
