// Package merge performs the k-way merge of sorted runs.
package merge

import (
	"context"
	"errors"
	"io"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/davidvella/xsort/recordio"
	"github.com/davidvella/xsort/run"
)

const defaultCheckEvery = 4096

// Options configures a merge.
type Options struct {
	Frontier FrontierKind
	Logger   *zap.Logger
	// CheckEvery is how many entries are emitted between context checks.
	CheckEvery int
}

// descending orders entries highest key first.
func descending(a, b recordio.Entry) bool {
	return a.Key > b.Key
}

type merger struct {
	ctx     context.Context
	set     *run.Set
	handles []run.Handle
	cursors []run.Reader
	log     *zap.Logger
	// released collects removal failures that do not stop the merge.
	released error
}

// Merge emits every entry of every run in set, highest key first, along
// with the ID of the run it came from, and
// releases each run once it is exhausted. On failure every open cursor is
// closed and every remaining run in set is released before returning.
// Errors from emit are returned as they are; storage failures are
// *run.Error values matching run.ErrReadFailed.
func Merge(ctx context.Context, set *run.Set, emit func(run.ID, recordio.Entry) error, opts Options) (err error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	checkEvery := opts.CheckEvery
	if checkEvery <= 0 {
		checkEvery = defaultCheckEvery
	}

	handles := set.Handles()
	m := &merger{
		ctx:     ctx,
		set:     set,
		handles: handles,
		cursors: make([]run.Reader, len(handles)),
		log:     log,
	}

	defer func() {
		if err != nil {
			err = multierr.Append(err, m.abort())
			return
		}
		err = m.released
	}()

	frontier, err := NewFrontier(opts.Frontier, len(handles), descending)
	if err != nil {
		return err
	}

	log.Debug("merging runs", zap.Int("runs", len(handles)), zap.Stringer("frontier", opts.Frontier))

	for slot := range handles {
		if err := m.open(slot); err != nil {
			return err
		}
		if err := m.advance(frontier, slot); err != nil {
			return err
		}
	}

	var emitted int64
	for {
		slot, e, ok := frontier.Pop()
		if !ok {
			break
		}
		if err := emit(m.handles[slot].ID, e); err != nil {
			return err
		}
		emitted++
		if emitted%int64(checkEvery) == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := m.advance(frontier, slot); err != nil {
			return err
		}
	}

	log.Debug("merged runs", zap.Int("runs", len(handles)), zap.Int64("entries", emitted))
	return nil
}

func (m *merger) open(slot int) error {
	id := m.handles[slot].ID
	r, err := m.set.Store().Open(m.ctx, id)
	if err != nil {
		return run.Wrap(run.OpRead, id, err)
	}
	m.cursors[slot] = r
	return nil
}

// advance pushes the next entry of slot, or finishes the run at its end.
func (m *merger) advance(f Frontier[recordio.Entry], slot int) error {
	id := m.handles[slot].ID
	e, err := m.cursors[slot].Next()
	if errors.Is(err, io.EOF) {
		return m.finish(slot)
	}
	if err != nil {
		return run.Wrap(run.OpRead, id, err)
	}
	f.Push(slot, e)
	return nil
}

func (m *merger) finish(slot int) error {
	id := m.handles[slot].ID
	r := m.cursors[slot]
	m.cursors[slot] = nil
	if err := r.Close(); err != nil {
		return run.Wrap(run.OpRead, id, err)
	}

	if err := m.set.Release(m.ctx, id); err != nil {
		m.log.Warn("failed to release run", zap.String("run", string(id)), zap.Error(err))
		m.released = multierr.Append(m.released, err)
	}
	return nil
}

// abort closes every open cursor and releases every remaining run.
func (m *merger) abort() error {
	var err error
	for slot, r := range m.cursors {
		if r == nil {
			continue
		}
		m.cursors[slot] = nil
		err = multierr.Append(err, run.Wrap(run.OpRead, m.handles[slot].ID, r.Close()))
	}
	err = multierr.Append(err, m.released)
	return multierr.Append(err, m.set.ReleaseAll(m.ctx))
}
