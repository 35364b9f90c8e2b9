/*
Package mergesort orders records descending by an int64 key using a
top-down recursive merge sort.

Keys are extracted once per record up front; the sort itself then works on
Keyed pairs and never calls the extractor again. During a merge the larger
head wins and equal heads take the left half first.

Basic usage:

	sorted, err := mergesort.Sort(trades, func(t Trade) (int64, error) {
		return t.Volume, nil
	})
*/
package mergesort
