// Package spill turns a stream of records into sorted runs of at most a
// chunk of records each.
package spill

import (
	"context"
	"errors"
	"iter"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/davidvella/xsort/codec"
	"github.com/davidvella/xsort/mergesort"
	"github.com/davidvella/xsort/recordio"
	"github.com/davidvella/xsort/run"
)

var (
	ErrInvalidChunkSize = errors.New("spill: chunk size must be greater than 0")
	ErrBuilderFailed    = errors.New("spill: builder already failed")
)

// Options configures a Builder.
type Options struct {
	Logger *zap.Logger
	// OnSpill is called after each run is sealed.
	OnSpill func(run.Handle)
}

// Builder buffers records and writes every full chunk as one sorted run
// into a run.Set. After any failure the builder releases every run in the
// set and refuses further work.
type Builder[R any] struct {
	set       *run.Set
	codec     codec.Codec[R]
	key       func(R) (int64, error)
	chunkSize int
	log       *zap.Logger
	onSpill   func(run.Handle)

	buf     []R
	handles []run.Handle
	failed  bool
}

func NewBuilder[R any](set *run.Set, c codec.Codec[R], key func(R) (int64, error), chunkSize int, opts Options) (*Builder[R], error) {
	if chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder[R]{
		set:       set,
		codec:     c,
		key:       key,
		chunkSize: chunkSize,
		log:       log,
		onSpill:   opts.OnSpill,
	}, nil
}

// Add buffers r and spills the buffer once it holds a full chunk.
func (b *Builder[R]) Add(ctx context.Context, r R) error {
	if b.failed {
		return ErrBuilderFailed
	}
	if b.buf == nil {
		b.buf = make([]R, 0, b.chunkSize)
	}

	b.buf = append(b.buf, r)
	if len(b.buf) < b.chunkSize {
		return nil
	}

	_, err := b.spill(ctx, b.buf, true)
	b.buf = b.buf[:0]
	return err
}

// Finish spills the remaining partial chunk and returns the handles of
// every run this builder wrote.
func (b *Builder[R]) Finish(ctx context.Context) ([]run.Handle, error) {
	if b.failed {
		return nil, ErrBuilderFailed
	}
	if len(b.buf) > 0 {
		if _, err := b.spill(ctx, b.buf, true); err != nil {
			return nil, err
		}
	}
	b.buf = nil
	return b.handles, nil
}

// Spill sorts chunk and writes it as a single run. chunk is not modified.
func (b *Builder[R]) Spill(ctx context.Context, chunk []R) (run.Handle, error) {
	return b.spill(ctx, chunk, false)
}

// SpillOwned is Spill for a chunk the caller hands over: chunk is cleared
// as soon as the keys are extracted, so its records are not held twice
// while the run is sorted and written.
func (b *Builder[R]) SpillOwned(ctx context.Context, chunk []R) (run.Handle, error) {
	return b.spill(ctx, chunk, true)
}

func (b *Builder[R]) spill(ctx context.Context, chunk []R, owned bool) (run.Handle, error) {
	if b.failed {
		return run.Handle{}, ErrBuilderFailed
	}
	if err := ctx.Err(); err != nil {
		return run.Handle{}, b.fail(ctx, err, nil)
	}

	items, err := mergesort.Decorate(chunk, b.key)
	if err != nil {
		return run.Handle{}, b.fail(ctx, err, nil)
	}
	if owned {
		clear(chunk)
	}
	mergesort.SortKeyed(items)

	w, err := b.set.Store().Create(ctx)
	if err != nil {
		return run.Handle{}, b.fail(ctx, run.Wrap(run.OpWrite, "", err), nil)
	}
	h := run.Handle{ID: w.ID()}
	b.set.Add(h)

	for _, it := range items {
		data, err := b.codec.Marshal(it.Value)
		if err != nil {
			return run.Handle{}, b.fail(ctx, err, w)
		}
		e := recordio.Entry{Key: it.Key, Data: data}
		if err := w.Write(e); err != nil {
			return run.Handle{}, b.fail(ctx, run.Wrap(run.OpWrite, h.ID, err), w)
		}
		h.Bytes += recordio.Size(e)
	}
	if err := w.Close(); err != nil {
		return run.Handle{}, b.fail(ctx, run.Wrap(run.OpWrite, h.ID, err), nil)
	}

	h.Records = len(items)
	if len(items) > 0 {
		h.MaxKey = items[0].Key
		h.MinKey = items[len(items)-1].Key
	}
	b.set.Add(h)
	b.handles = append(b.handles, h)

	b.log.Debug("spilled run",
		zap.String("run", string(h.ID)),
		zap.Int("records", h.Records),
		zap.Int64("bytes", h.Bytes),
		zap.Int64("maxKey", h.MaxKey),
		zap.Int64("minKey", h.MinKey))
	if b.onSpill != nil {
		b.onSpill(h)
	}
	return h, nil
}

// fail closes the run being written, releases every run in the set and
// returns err combined with any cleanup failure.
func (b *Builder[R]) fail(ctx context.Context, err error, w run.Writer) error {
	b.failed = true
	b.buf = nil
	if w != nil {
		err = multierr.Append(err, run.Wrap(run.OpWrite, w.ID(), w.Close()))
	}
	if cerr := b.set.ReleaseAll(ctx); cerr != nil {
		b.log.Warn("failed to release runs after spill failure", zap.Error(cerr))
		err = multierr.Append(err, cerr)
	}
	return err
}

// Build spills all of input into set and returns the run handles.
func Build[R any](ctx context.Context, set *run.Set, input iter.Seq[R], c codec.Codec[R], key func(R) (int64, error), chunkSize int, opts Options) ([]run.Handle, error) {
	b, err := NewBuilder(set, c, key, chunkSize, opts)
	if err != nil {
		return nil, err
	}
	for r := range input {
		if err := b.Add(ctx, r); err != nil {
			return nil, err
		}
	}
	return b.Finish(ctx)
}
