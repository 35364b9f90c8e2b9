// Package faulty wraps a run.Store and injects failures at chosen points.
// It also counts creates and open cursors so tests can check that every run
// and reader was cleaned up.
package faulty

import (
	"context"
	"errors"
	"sync"

	"github.com/davidvella/xsort/recordio"
	"github.com/davidvella/xsort/run"
)

var ErrInjected = errors.New("faulty: injected failure")

// Config selects which operations fail. Counters are 1-based; zero disables
// the fault.
type Config struct {
	// FailCreate fails the Nth Create call.
	FailCreate int
	// FailWriteRun fails the first Write to the Nth created run.
	FailWriteRun int
	// FailCloseRun fails Close of the Nth created run.
	FailCloseRun int
	// FailOpen fails the Nth Open call.
	FailOpen int
	// FailReadOpen and FailReadAfter fail Next on the FailReadOpen-th opened
	// reader after it has returned FailReadAfter entries.
	FailReadOpen  int
	FailReadAfter int
	// FailRemove makes every Remove fail after removing the run.
	FailRemove bool
}

// Store injects the faults described by Config into an inner store.
type Store struct {
	inner run.Store
	cfg   Config

	mu          sync.Mutex
	creates     int
	opens       int
	openReaders int
	openWriters int
}

func New(inner run.Store, cfg Config) *Store {
	return &Store{inner: inner, cfg: cfg}
}

// Creates returns the number of Create calls, including failed ones.
func (s *Store) Creates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates
}

// OpenReaders returns the number of readers not yet closed.
func (s *Store) OpenReaders() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openReaders
}

// OpenWriters returns the number of writers not yet closed.
func (s *Store) OpenWriters() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openWriters
}

func (s *Store) Create(ctx context.Context) (run.Writer, error) {
	s.mu.Lock()
	s.creates++
	n := s.creates
	s.mu.Unlock()

	if n == s.cfg.FailCreate {
		return nil, ErrInjected
	}

	w, err := s.inner.Create(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.openWriters++
	s.mu.Unlock()

	return &writer{
		Writer:    w,
		store:     s,
		failWrite: n == s.cfg.FailWriteRun,
		failClose: n == s.cfg.FailCloseRun,
	}, nil
}

func (s *Store) Open(ctx context.Context, id run.ID) (run.Reader, error) {
	s.mu.Lock()
	s.opens++
	n := s.opens
	s.mu.Unlock()

	if n == s.cfg.FailOpen {
		return nil, ErrInjected
	}

	r, err := s.inner.Open(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.openReaders++
	s.mu.Unlock()

	failAfter := -1
	if n == s.cfg.FailReadOpen {
		failAfter = s.cfg.FailReadAfter
	}
	return &reader{Reader: r, store: s, failAfter: failAfter}, nil
}

func (s *Store) Remove(ctx context.Context, id run.ID) error {
	if err := s.inner.Remove(ctx, id); err != nil {
		return err
	}
	if s.cfg.FailRemove {
		return ErrInjected
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]run.ID, error) {
	return s.inner.List(ctx)
}

type writer struct {
	run.Writer
	store     *Store
	failWrite bool
	failClose bool
	closed    bool
}

func (w *writer) Write(e recordio.Entry) error {
	if w.failWrite {
		return ErrInjected
	}
	return w.Writer.Write(e)
}

func (w *writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	w.store.mu.Lock()
	w.store.openWriters--
	w.store.mu.Unlock()

	err := w.Writer.Close()
	if w.failClose {
		return ErrInjected
	}
	return err
}

type reader struct {
	run.Reader
	store     *Store
	failAfter int
	read      int
	closed    bool
}

func (r *reader) Next() (recordio.Entry, error) {
	if r.failAfter >= 0 && r.read >= r.failAfter {
		return recordio.Entry{}, ErrInjected
	}
	e, err := r.Reader.Next()
	if err == nil {
		r.read++
	}
	return e, err
}

func (r *reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	r.store.mu.Lock()
	r.store.openReaders--
	r.store.mu.Unlock()

	return r.Reader.Close()
}
