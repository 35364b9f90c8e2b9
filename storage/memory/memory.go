// Package memory implements run.Store in process memory.
package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/davidvella/xsort/recordio"
	"github.com/davidvella/xsort/run"
)

var (
	ErrNotFound = errors.New("memory: run not found")
	ErrClosed   = errors.New("memory: run already closed")
)

type memRun struct {
	entries []recordio.Entry
	sealed  bool
}

// Storage keeps every run as a slice of entries.
type Storage struct {
	mu   sync.RWMutex
	runs map[run.ID]*memRun
}

func NewStorage() *Storage {
	return &Storage{
		runs: make(map[run.ID]*memRun),
	}
}

func (m *Storage) Create(ctx context.Context) (run.Writer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := run.ID(uuid.NewString())
	r := &memRun{}

	m.mu.Lock()
	m.runs[id] = r
	m.mu.Unlock()

	return &writer{store: m, id: id, run: r}, nil
}

func (m *Storage) Open(ctx context.Context, id run.ID) (run.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !r.sealed {
		return nil, fmt.Errorf("memory: run %s is still being written", id)
	}
	return &reader{entries: r.entries}, nil
}

func (m *Storage) Remove(_ context.Context, id run.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.runs, id)
	return nil
}

func (m *Storage) List(_ context.Context) ([]run.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]run.ID, 0, len(m.runs))
	for id := range m.runs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

type writer struct {
	store  *Storage
	id     run.ID
	run    *memRun
	closed bool
}

func (w *writer) ID() run.ID {
	return w.id
}

func (w *writer) Write(e recordio.Entry) error {
	if w.closed {
		return ErrClosed
	}
	e.Data = slices.Clone(e.Data)

	w.store.mu.Lock()
	w.run.entries = append(w.run.entries, e)
	w.store.mu.Unlock()
	return nil
}

func (w *writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	w.store.mu.Lock()
	w.run.sealed = true
	w.store.mu.Unlock()
	return nil
}

type reader struct {
	entries []recordio.Entry
	pos     int
}

func (r *reader) Next() (recordio.Entry, error) {
	if r.pos >= len(r.entries) {
		return recordio.Entry{}, io.EOF
	}
	e := r.entries[r.pos]
	r.pos++
	return e, nil
}

func (r *reader) Close() error {
	r.entries = nil
	return nil
}
