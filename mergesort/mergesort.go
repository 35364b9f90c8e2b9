package mergesort

// Keyed pairs a record with its extracted sort key.
type Keyed[R any] struct {
	Key   int64
	Value R
}

// Decorate extracts the key of every record. It stops at the first
// extractor error and returns it unmodified.
func Decorate[R any](records []R, key func(R) (int64, error)) ([]Keyed[R], error) {
	items := make([]Keyed[R], len(records))
	for i, r := range records {
		k, err := key(r)
		if err != nil {
			return nil, err
		}
		items[i] = Keyed[R]{Key: k, Value: r}
	}
	return items, nil
}

// SortKeyed sorts items in place, descending by key.
func SortKeyed[R any](items []Keyed[R]) {
	if len(items) <= 1 {
		return
	}
	scratch := make([]Keyed[R], len(items))
	sortRange(items, scratch)
}

func sortRange[R any](items, scratch []Keyed[R]) {
	if len(items) <= 1 {
		return
	}
	mid := len(items) / 2
	sortRange(items[:mid], scratch[:mid])
	sortRange(items[mid:], scratch[mid:])
	merge(items, mid, scratch)
}

// merge combines the sorted halves items[:mid] and items[mid:] through
// scratch and copies the result back.
func merge[R any](items []Keyed[R], mid int, scratch []Keyed[R]) {
	left, right := items[:mid], items[mid:]
	i, j, k := 0, 0, 0
	for i < len(left) && j < len(right) {
		if left[i].Key >= right[j].Key {
			scratch[k] = left[i]
			i++
		} else {
			scratch[k] = right[j]
			j++
		}
		k++
	}
	k += copy(scratch[k:], left[i:])
	copy(scratch[k:], right[j:])
	copy(items, scratch[:len(items)])
}

// Sort returns a new slice holding records ordered descending by key. The
// input slice is not modified.
func Sort[R any](records []R, key func(R) (int64, error)) ([]R, error) {
	items, err := Decorate(records, key)
	if err != nil {
		return nil, err
	}
	SortKeyed(items)

	out := make([]R, len(items))
	for i, it := range items {
		out[i] = it.Value
	}
	return out, nil
}
