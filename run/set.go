package run

import (
	"context"
	"sync"

	"go.uber.org/multierr"
)

// Set owns the runs created during one sort invocation.
type Set struct {
	store Store

	mu       sync.Mutex
	handles  []Handle
	live     map[ID]struct{}
	created  int
	released int
}

func NewSet(store Store) *Set {
	return &Set{
		store: store,
		live:  make(map[ID]struct{}),
	}
}

// Store returns the store the runs live in.
func (s *Set) Store() Store {
	return s.store
}

// Add registers a run, or refreshes the handle of a live one. It must be
// called as soon as the run is created so a failure while writing it still
// gets the run released.
func (s *Set) Add(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.live[h.ID]; ok {
		for i := range s.handles {
			if s.handles[i].ID == h.ID {
				s.handles[i] = h
			}
		}
		return
	}
	s.handles = append(s.handles, h)
	s.live[h.ID] = struct{}{}
	s.created++
}

// Handles returns the live runs in creation order.
func (s *Set) Handles() []Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Handle, 0, len(s.live))
	for _, h := range s.handles {
		if _, ok := s.live[h.ID]; ok {
			out = append(out, h)
		}
	}
	return out
}

// Live returns the number of runs not yet released.
func (s *Set) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Created returns the number of runs ever added.
func (s *Set) Created() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

// Released returns the number of runs released.
func (s *Set) Released() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Release removes a run from the store. Releasing an unknown or already
// released run is a no-op. The run leaves the set even if removal fails,
// so it is never removed twice.
func (s *Set) Release(ctx context.Context, id ID) error {
	s.mu.Lock()
	if _, ok := s.live[id]; !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.live, id)
	s.released++
	s.mu.Unlock()

	return Wrap(OpRemove, id, s.store.Remove(ctx, id))
}

// ReleaseAll releases every live run and combines the errors.
func (s *Set) ReleaseAll(ctx context.Context) error {
	// Removal must not be skipped because the sort's context was cancelled.
	ctx = context.WithoutCancel(ctx)

	var err error
	for _, h := range s.Handles() {
		err = multierr.Append(err, s.Release(ctx, h.ID))
	}
	return err
}
