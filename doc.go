/*
Package xsort ranks collections of records that may not fit in memory by a
signed integer key, highest first.

Inputs of at most one chunk are sorted directly in memory. Larger inputs
are cut into chunks; each chunk is sorted and spilled to a run.Store as a
run, and the runs are merged back with a k-way merge. Every run created for
a sort is removed before the sort returns, whether it succeeded or not.

	sorter, err := xsort.New(
		func(t stock.Trade) (int64, error) { return t.Volume, nil },
		stock.Codec{},
		xsort.WithChunkSize(100_000),
	)
	if err != nil {
		return err
	}
	ranked, err := sorter.Sort(ctx, trades)

SortTo streams its input and output instead, so only one chunk of records
is held in memory at a time.
*/
package xsort
