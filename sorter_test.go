package xsort_test

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/davidvella/xsort"
	"github.com/davidvella/xsort/codec"
	"github.com/davidvella/xsort/merge"
	"github.com/davidvella/xsort/metrics"
	"github.com/davidvella/xsort/run"
	"github.com/davidvella/xsort/storage/faulty"
	"github.com/davidvella/xsort/storage/local"
	"github.com/davidvella/xsort/storage/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type record struct {
	ID  int64
	Key int64
}

func recordKey(r record) (int64, error) {
	return r.Key, nil
}

var recordCodec = codec.Func[record]{
	MarshalFunc: func(r record) ([]byte, error) {
		b := make([]byte, 16)
		binary.LittleEndian.PutUint64(b, uint64(r.ID))
		binary.LittleEndian.PutUint64(b[8:], uint64(r.Key))
		return b, nil
	},
	UnmarshalFunc: func(b []byte) (record, error) {
		if len(b) != 16 {
			return record{}, fmt.Errorf("record: want 16 bytes, got %d", len(b))
		}
		return record{
			ID:  int64(binary.LittleEndian.Uint64(b)),
			Key: int64(binary.LittleEndian.Uint64(b[8:])),
		}, nil
	},
}

func randomRecords(n int, keySpace int64, seed int64) []record {
	rng := rand.New(rand.NewSource(seed))
	out := make([]record, n)
	for i := range out {
		out[i] = record{ID: int64(i), Key: rng.Int63n(keySpace) - keySpace/2}
	}
	return out
}

// assertRanked checks that got is a descending permutation of input.
func assertRanked(t *testing.T, input, got []record) {
	t.Helper()

	require.Len(t, got, len(input))
	for i := 1; i < len(got); i++ {
		if got[i-1].Key < got[i].Key {
			t.Fatalf("position %d: key %d after %d", i, got[i].Key, got[i-1].Key)
		}
	}

	seen := make([]bool, len(input))
	for _, r := range got {
		require.False(t, seen[r.ID], "record %d emitted twice", r.ID)
		seen[r.ID] = true
		assert.Equal(t, input[r.ID], r)
	}
}

func newSorter(t *testing.T, store run.Store, opts ...xsort.Option) *xsort.Sorter[record] {
	t.Helper()

	s, err := xsort.New(recordKey, recordCodec, append([]xsort.Option{xsort.WithStore(store)}, opts...)...)
	require.NoError(t, err)
	return s
}

func assertNoRuns(t *testing.T, store run.Store) {
	t.Helper()

	ids, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSort(t *testing.T) {
	tests := []struct {
		name      string
		records   int
		keySpace  int64
		chunkSize int
	}{
		{name: "empty", records: 0, keySpace: 10, chunkSize: 10},
		{name: "single", records: 1, keySpace: 10, chunkSize: 10},
		{name: "fits in one chunk", records: 10, keySpace: 1000, chunkSize: 10},
		{name: "one over", records: 11, keySpace: 1000, chunkSize: 10},
		{name: "many runs", records: 1003, keySpace: 1 << 40, chunkSize: 50},
		{name: "heavy duplicates", records: 500, keySpace: 3, chunkSize: 64},
		{name: "chunk of one", records: 20, keySpace: 5, chunkSize: 1},
	}

	for _, kind := range merge.FrontierKinds {
		for _, tt := range tests {
			t.Run(kind.String()+"/"+tt.name, func(t *testing.T) {
				store := memory.NewStorage()
				s := newSorter(t, store, xsort.WithChunkSize(tt.chunkSize), xsort.WithFrontier(kind))
				input := randomRecords(tt.records, tt.keySpace, int64(tt.records))
				original := slices.Clone(input)

				got, err := s.Sort(context.Background(), input)
				require.NoError(t, err)
				assertRanked(t, input, got)
				assert.Equal(t, original, input, "input must not be modified")
				assertNoRuns(t, store)
			})
		}
	}
}

func TestSortTo(t *testing.T) {
	for _, n := range []int{0, 9, 10, 11, 95} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			store := faulty.New(memory.NewStorage(), faulty.Config{})
			s := newSorter(t, store, xsort.WithChunkSize(10))
			input := randomRecords(n, 40, 5)

			var got []record
			rep, err := s.SortTo(context.Background(), slices.Values(input), xsort.EmitterFunc[record](func(_ context.Context, r record) error {
				got = append(got, r)
				return nil
			}))
			require.NoError(t, err)
			assertRanked(t, input, got)

			assert.Equal(t, n, rep.Records)
			wantRuns := 0
			if n > 10 {
				wantRuns = (n + 9) / 10
				assert.Equal(t, xsort.PathExternal, rep.Path)
			} else {
				assert.Equal(t, xsort.PathDirect, rep.Path)
			}
			assert.Equal(t, wantRuns, rep.Runs)
			assert.Equal(t, wantRuns, store.Creates())
			assert.Equal(t, 0, store.OpenReaders())
			assertNoRuns(t, store)
		})
	}
}

// Scenario: 250,001 records with the default-sized chunk spill three runs
// of 100,000, 100,000 and 50,001 records.
func TestSortSpillsChunkSizedRuns(t *testing.T) {
	if testing.Short() {
		t.Skip("large input")
	}

	core, logs := observer.New(zap.DebugLevel)
	store := faulty.New(memory.NewStorage(), faulty.Config{})
	s := newSorter(t, store, xsort.WithLogger(zap.New(core)))

	input := randomRecords(250_001, 1_000_000, 1)
	got, err := s.Sort(context.Background(), input)
	require.NoError(t, err)
	assertRanked(t, input, got)

	var sizes []int64
	for _, entry := range logs.FilterMessage("spilled run").All() {
		sizes = append(sizes, entry.ContextMap()["records"].(int64))
	}
	assert.Equal(t, []int64{100_000, 100_000, 50_001}, sizes)
	assert.Equal(t, 3, store.Creates())
	assertNoRuns(t, store)
}

func TestSortKeepsDuplicates(t *testing.T) {
	input := []record{{0, 50}, {1, 10}, {2, 50}, {3, 30}, {4, 50}}
	s := newSorter(t, memory.NewStorage(), xsort.WithChunkSize(2))

	got, err := s.Sort(context.Background(), input)
	require.NoError(t, err)
	assertRanked(t, input, got)

	keys := make([]int64, len(got))
	for i, r := range got {
		keys[i] = r.Key
	}
	assert.Equal(t, []int64{50, 50, 50, 30, 10}, keys)
}

func TestSortWriteFailureReleasesRuns(t *testing.T) {
	inner := memory.NewStorage()
	store := faulty.New(inner, faulty.Config{FailWriteRun: 2})
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s := newSorter(t, store, xsort.WithChunkSize(10), xsort.WithMetrics(m))

	got, err := s.Sort(context.Background(), randomRecords(50, 100, 2))
	require.Error(t, err)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, run.ErrWriteFailed)

	assert.Equal(t, 2, store.Creates())
	assert.Equal(t, 0, store.OpenWriters())
	assertNoRuns(t, inner)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Failures.WithLabelValues(metrics.StageSpill)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RunsCreated))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RunsReleased))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LiveRuns))
}

func TestSortReadFailureReleasesRuns(t *testing.T) {
	inner := memory.NewStorage()
	store := faulty.New(inner, faulty.Config{FailReadOpen: 2, FailReadAfter: 3})
	s := newSorter(t, store, xsort.WithChunkSize(10))

	_, err := s.Sort(context.Background(), randomRecords(40, 100, 3))
	assert.ErrorIs(t, err, run.ErrReadFailed)
	assert.Equal(t, 0, store.OpenReaders())
	assertNoRuns(t, inner)
}

func TestSortEmptyInputTouchesNoStorage(t *testing.T) {
	store := faulty.New(memory.NewStorage(), faulty.Config{FailCreate: 1})
	s := newSorter(t, store)

	got, err := s.Sort(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	rep, err := s.SortTo(context.Background(), slices.Values([]record{}), xsort.EmitterFunc[record](func(context.Context, record) error {
		t.Fatal("nothing to emit")
		return nil
	}))
	require.NoError(t, err)
	assert.Equal(t, xsort.PathDirect, rep.Path)
	assert.Equal(t, 0, store.Creates())
}

func TestSortThresholdBoundary(t *testing.T) {
	const chunk = 16
	input := randomRecords(chunk+1, 8, 4)

	atChunk := faulty.New(memory.NewStorage(), faulty.Config{})
	direct, err := newSorter(t, atChunk, xsort.WithChunkSize(chunk)).Sort(context.Background(), input[:chunk])
	require.NoError(t, err)
	assert.Equal(t, 0, atChunk.Creates())
	assertRanked(t, input[:chunk], direct)

	overChunk := faulty.New(memory.NewStorage(), faulty.Config{})
	external, err := newSorter(t, overChunk, xsort.WithChunkSize(chunk)).Sort(context.Background(), input)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, overChunk.Creates(), 1)
	assertRanked(t, input, external)

	// With every record in memory the same input sorts identically.
	inMemory, err := newSorter(t, memory.NewStorage(), xsort.WithChunkSize(chunk+1)).Sort(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, keysOf(inMemory), keysOf(external))
}

func keysOf(records []record) []int64 {
	out := make([]int64, len(records))
	for i, r := range records {
		out[i] = r.Key
	}
	return out
}

func TestSortIsIdempotent(t *testing.T) {
	s := newSorter(t, memory.NewStorage(), xsort.WithChunkSize(7))
	input := randomRecords(100, 20, 6)

	once, err := s.Sort(context.Background(), input)
	require.NoError(t, err)
	twice, err := s.Sort(context.Background(), once)
	require.NoError(t, err)
	assert.Equal(t, keysOf(once), keysOf(twice))
}

func TestSortKeyErrorPropagates(t *testing.T) {
	errKey := errors.New("no volume")
	key := func(r record) (int64, error) {
		if r.ID == 33 {
			return 0, errKey
		}
		return r.Key, nil
	}

	for _, n := range []int{40, 200} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			store := memory.NewStorage()
			s, err := xsort.New(key, recordCodec, xsort.WithStore(store), xsort.WithChunkSize(50))
			require.NoError(t, err)

			_, err = s.Sort(context.Background(), randomRecords(n, 10, 7))
			assert.ErrorIs(t, err, errKey)
			assert.NotErrorIs(t, err, run.ErrWriteFailed)
			assertNoRuns(t, store)
		})
	}
}

func TestSortDecodeFailureIsReadFailure(t *testing.T) {
	broken := codec.Func[record]{
		MarshalFunc:   recordCodec.MarshalFunc,
		UnmarshalFunc: func([]byte) (record, error) { return record{}, errors.New("garbled") },
	}
	store := memory.NewStorage()
	s, err := xsort.New(recordKey, codec.Codec[record](broken), xsort.WithStore(store), xsort.WithChunkSize(5))
	require.NoError(t, err)

	_, err = s.Sort(context.Background(), randomRecords(12, 10, 8))
	assert.ErrorIs(t, err, run.ErrReadFailed)

	var runErr *run.Error
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, run.OpRead, runErr.Op)
	assert.NotEmpty(t, runErr.ID, "decode failure names the run it came from")
	assertNoRuns(t, store)
}

func TestSortToEmitErrorPropagates(t *testing.T) {
	errFull := errors.New("enough")
	for _, n := range []int{8, 80} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			store := faulty.New(memory.NewStorage(), faulty.Config{})
			s := newSorter(t, store, xsort.WithChunkSize(10))

			var emitted int
			_, err := s.SortTo(context.Background(), slices.Values(randomRecords(n, 100, 9)), xsort.EmitterFunc[record](func(context.Context, record) error {
				emitted++
				if emitted == 5 {
					return errFull
				}
				return nil
			}))
			assert.ErrorIs(t, err, errFull)
			assert.Equal(t, 5, emitted)
			assert.Equal(t, 0, store.OpenReaders())
			assertNoRuns(t, store)
		})
	}
}

func TestSortCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := memory.NewStorage()
	s := newSorter(t, store, xsort.WithChunkSize(4))
	_, err := s.Sort(ctx, randomRecords(20, 10, 10))
	assert.ErrorIs(t, err, context.Canceled)
	assertNoRuns(t, store)
}

func TestSortLogsStateTransitions(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := newSorter(t, memory.NewStorage(), xsort.WithChunkSize(3), xsort.WithLogger(zap.New(core)))

	_, err := s.Sort(context.Background(), randomRecords(7, 10, 11))
	require.NoError(t, err)

	var states []string
	for _, e := range logs.FilterMessage("sort state").All() {
		states = append(states, e.ContextMap()["to"].(string))
	}
	assert.Equal(t, []string{"deciding", "spilling", "merging", "cleanup", "done"}, states)
	assert.Equal(t, 1, logs.FilterMessage("external sort finished").Len())
}

func TestSorterIsSafeForConcurrentUse(t *testing.T) {
	store := memory.NewStorage()
	s := newSorter(t, store, xsort.WithChunkSize(25))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			input := randomRecords(300, 1000, seed)
			got, err := s.Sort(context.Background(), input)
			if assert.NoError(t, err) {
				assertRanked(t, input, got)
			}
		}(int64(i))
	}
	wg.Wait()
	assertNoRuns(t, store)
}

func TestSortWithLocalStore(t *testing.T) {
	for _, c := range []local.Compression{local.CompressionNone, local.CompressionZstd} {
		t.Run(c.String(), func(t *testing.T) {
			store, err := local.NewStorage("/tmp/runs", local.WithFs(afero.NewMemMapFs()), local.WithCompression(c))
			require.NoError(t, err)
			s := newSorter(t, store, xsort.WithChunkSize(100))

			input := randomRecords(1000, 1<<20, 12)
			got, err := s.Sort(context.Background(), input)
			require.NoError(t, err)
			assertRanked(t, input, got)
			assertNoRuns(t, store)
		})
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		key  xsort.KeyFunc[record]
		c    codec.Codec[record]
		opts []xsort.Option
		want error
	}{
		{name: "nil key", c: recordCodec, want: xsort.ErrNilKeyFunc},
		{name: "nil codec", key: recordKey, want: xsort.ErrNilCodec},
		{name: "zero chunk", key: recordKey, c: recordCodec, opts: []xsort.Option{xsort.WithChunkSize(0)}, want: xsort.ErrInvalidChunkSize},
		{name: "negative chunk", key: recordKey, c: recordCodec, opts: []xsort.Option{xsort.WithChunkSize(-5)}, want: xsort.ErrInvalidChunkSize},
		{name: "nil store", key: recordKey, c: recordCodec, opts: []xsort.Option{xsort.WithStore(nil)}, want: xsort.ErrNilStore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := xsort.New(tt.key, tt.c, tt.opts...)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := xsort.New(recordKey, recordCodec, xsort.WithStore(memory.NewStorage()), xsort.WithFrontier(merge.FrontierKind(9)))
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "direct-sort", xsort.StateDirectSort.String())
	assert.Equal(t, "failed", xsort.StateFailed.String())
	assert.Equal(t, "State(42)", xsort.State(42).String())
	assert.Equal(t, "external", xsort.PathExternal.String())
}
