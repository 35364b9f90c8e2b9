package xsort

import (
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/davidvella/xsort/codec"
	"github.com/davidvella/xsort/merge"
	"github.com/davidvella/xsort/mergesort"
	"github.com/davidvella/xsort/metrics"
	"github.com/davidvella/xsort/recordio"
	"github.com/davidvella/xsort/run"
	"github.com/davidvella/xsort/spill"
	"github.com/davidvella/xsort/storage/local"
)

var (
	ErrInvalidChunkSize = errors.New("xsort: chunk size must be greater than 0")
	ErrNilKeyFunc       = errors.New("xsort: key func cannot be nil")
	ErrNilCodec         = errors.New("xsort: codec cannot be nil")
	ErrNilStore         = errors.New("xsort: store cannot be nil")
)

// KeyFunc extracts the sort key of a record. Its errors are returned by the
// sort unchanged.
type KeyFunc[R any] func(R) (int64, error)

// Path is the strategy a sort took.
type Path int

const (
	PathDirect Path = iota
	PathExternal
)

func (p Path) String() string {
	if p == PathExternal {
		return metrics.PathExternal
	}
	return metrics.PathDirect
}

// Report describes a finished sort.
type Report struct {
	Path     Path
	Records  int
	Runs     int
	Duration time.Duration
}

// Sorter sorts records of type R descending by key. It holds no per-sort
// state and is safe for concurrent use.
type Sorter[R any] struct {
	key   KeyFunc[R]
	codec codec.Codec[R]
	opts  options
	log   *zap.Logger
	m     *metrics.Metrics
}

// New validates the configuration and returns a Sorter. The codec is only
// used when a sort spills runs.
func New[R any](key KeyFunc[R], c codec.Codec[R], opts ...Option) (*Sorter[R], error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if key == nil {
		return nil, ErrNilKeyFunc
	}
	if c == nil {
		return nil, ErrNilCodec
	}
	if o.chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}
	if o.storeSet && o.store == nil {
		return nil, ErrNilStore
	}
	if _, err := merge.NewFrontier[recordio.Entry](o.frontier, 0, nil); err != nil {
		return nil, err
	}

	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.metrics == nil {
		o.metrics = metrics.New(nil)
	}
	if o.store == nil {
		s, err := local.NewStorage(filepath.Join(os.TempDir(), "xsort"))
		if err != nil {
			return nil, err
		}
		o.store = s
	}

	return &Sorter[R]{
		key:   key,
		codec: c,
		opts:  o,
		log:   o.logger,
		m:     o.metrics,
	}, nil
}

// Sort returns input ordered descending by key. The input slice is not
// modified. No partial output is returned on failure.
func (s *Sorter[R]) Sort(ctx context.Context, input []R) ([]R, error) {
	inv := newInvocation(s.log)
	inv.enter(StateDeciding)

	if len(input) <= s.opts.chunkSize {
		out, _, err := s.direct(inv, input)
		return out, err
	}

	out := make([]R, 0, len(input))
	feed := func(b *spill.Builder[R]) error {
		for i := 0; i < len(input); i += s.opts.chunkSize {
			end := min(i+s.opts.chunkSize, len(input))
			if _, err := b.Spill(ctx, input[i:end]); err != nil {
				return err
			}
		}
		return nil
	}
	emit := func(r R) error {
		out = append(out, r)
		return nil
	}
	if _, err := s.external(ctx, inv, feed, emit); err != nil {
		return nil, err
	}
	return out, nil
}

// SortTo reads input once and emits its records to out in order. At most
// one chunk of records, plus one record of look-ahead, is held in memory.
// If an error is returned, out may already have received a prefix of the
// output, which must be discarded.
func (s *Sorter[R]) SortTo(ctx context.Context, input iter.Seq[R], out Emitter[R]) (Report, error) {
	inv := newInvocation(s.log)
	inv.enter(StateDeciding)

	next, stop := iter.Pull(input)
	defer stop()

	chunk := make([]R, 0, min(s.opts.chunkSize, 4096))
	for len(chunk) < s.opts.chunkSize {
		r, ok := next()
		if !ok {
			break
		}
		chunk = append(chunk, r)
	}

	var (
		lookahead R
		more      bool
	)
	if len(chunk) == s.opts.chunkSize {
		lookahead, more = next()
	}

	if !more {
		sorted, rep, err := s.direct(inv, chunk)
		if err != nil {
			return rep, err
		}
		for _, r := range sorted {
			if err := out.Emit(ctx, r); err != nil {
				return rep, err
			}
		}
		return rep, nil
	}

	feed := func(b *spill.Builder[R]) error {
		if _, err := b.SpillOwned(ctx, chunk); err != nil {
			return err
		}
		chunk = nil

		if err := b.Add(ctx, lookahead); err != nil {
			return err
		}
		for {
			r, ok := next()
			if !ok {
				return nil
			}
			if err := b.Add(ctx, r); err != nil {
				return err
			}
		}
	}
	emit := func(r R) error {
		return out.Emit(ctx, r)
	}
	return s.external(ctx, inv, feed, emit)
}

func (s *Sorter[R]) direct(inv *invocation, input []R) ([]R, Report, error) {
	inv.enter(StateDirectSort)
	rep := Report{Path: PathDirect, Records: len(input)}

	sorted, err := mergesort.Sort(input, s.key)
	rep.Duration = time.Since(inv.start)
	if err != nil {
		s.m.Failures.WithLabelValues(metrics.StageDirect).Inc()
		s.finish(inv, true)
		return nil, rep, err
	}

	s.m.Sorts.WithLabelValues(metrics.PathDirect).Inc()
	s.m.SortDuration.WithLabelValues(metrics.PathDirect).Observe(rep.Duration.Seconds())
	s.finish(inv, false)
	return sorted, rep, nil
}

// external spills everything feed hands the builder, merges the runs into
// emit and releases every run before returning.
func (s *Sorter[R]) external(ctx context.Context, inv *invocation, feed func(*spill.Builder[R]) error, emit func(R) error) (rep Report, err error) {
	rep.Path = PathExternal
	set := run.NewSet(s.opts.store)
	stage := metrics.StageSpill
	var spilled int

	defer func() {
		if err != nil {
			inv.enter(StateFailed)
			s.m.Failures.WithLabelValues(stage).Inc()
		}
		inv.enter(StateCleanup)
		if cerr := set.ReleaseAll(ctx); cerr != nil {
			s.log.Warn("failed to release runs", zap.Error(cerr))
			err = multierr.Append(err, cerr)
		}
		s.m.RunsCreated.Add(float64(set.Created()))
		s.m.RunsReleased.Add(float64(set.Released()))
		s.m.LiveRuns.Sub(float64(spilled))
		inv.enter(StateDone)

		rep.Duration = time.Since(inv.start)
		if err == nil {
			s.m.Sorts.WithLabelValues(metrics.PathExternal).Inc()
			s.m.SortDuration.WithLabelValues(metrics.PathExternal).Observe(rep.Duration.Seconds())
			s.log.Info("external sort finished",
				zap.Int("records", rep.Records),
				zap.Int("runs", rep.Runs),
				zap.Duration("duration", rep.Duration))
		}
	}()

	inv.enter(StateSpilling)
	b, err := spill.NewBuilder(set, s.codec, s.key, s.opts.chunkSize, spill.Options{
		Logger: s.log,
		OnSpill: func(h run.Handle) {
			spilled++
			s.m.LiveRuns.Inc()
			s.m.RecordsSpilled.Add(float64(h.Records))
		},
	})
	if err != nil {
		return rep, err
	}
	if err := feed(b); err != nil {
		return rep, err
	}
	handles, err := b.Finish(ctx)
	if err != nil {
		return rep, err
	}
	rep.Runs = len(handles)

	inv.enter(StateMerging)
	stage = metrics.StageMerge
	err = merge.Merge(ctx, set, func(id run.ID, e recordio.Entry) error {
		r, err := s.codec.Unmarshal(e.Data)
		if err != nil {
			return run.Wrap(run.OpRead, id, err)
		}
		if err := emit(r); err != nil {
			return err
		}
		rep.Records++
		return nil
	}, merge.Options{
		Frontier: s.opts.frontier,
		Logger:   s.log,
	})
	return rep, err
}

// finish walks a direct sort through the closing states; there is nothing
// to clean up.
func (s *Sorter[R]) finish(inv *invocation, failed bool) {
	if failed {
		inv.enter(StateFailed)
	}
	inv.enter(StateCleanup)
	inv.enter(StateDone)
}
