package priority

import "cmp"

// item represents an item in the value queue.
type item[K cmp.Ordered, V any] struct {
	key   K
	value V
	index int
}

// Queue implements a keyed priority queue using a binary heap.
type Queue[K cmp.Ordered, V any] struct {
	items   []*item[K, V]
	itemMap map[K]*item[K, V]
	lessF   func(a, b V) bool // returns true if a has higher priority than b
}

// NewQueue creates a new priority queue with the given comparator. Values
// that neither precede the other are ordered by key, lowest first.
func NewQueue[K cmp.Ordered, V any](less func(a, b V) bool) *Queue[K, V] {
	return &Queue[K, V]{
		items:   make([]*item[K, V], 0),
		itemMap: make(map[K]*item[K, V]),
		lessF:   less,
	}
}

// Len returns the number of items in the queue.
func (pq *Queue[K, V]) Len() int {
	return len(pq.items)
}

// Set adds a new key or updates an existing key's value.
func (pq *Queue[K, V]) Set(key K, value V) {
	if i, exists := pq.itemMap[key]; exists {
		i.value = value
		pq.up(i.index)
		pq.down(i.index)
		return
	}

	i := &item[K, V]{
		key:   key,
		value: value,
		index: len(pq.items),
	}
	pq.items = append(pq.items, i)
	pq.itemMap[key] = i
	pq.up(i.index)
}

// Push is Set under the name merge frontiers use.
func (pq *Queue[K, V]) Push(key K, value V) {
	pq.Set(key, value)
}

// remove drops key from the queue.
func (pq *Queue[K, V]) remove(key K) {
	i, exists := pq.itemMap[key]
	if !exists {
		return
	}

	idx := i.index
	lastIdx := len(pq.items) - 1

	if idx != lastIdx {
		pq.swap(idx, lastIdx)
		pq.items[lastIdx] = nil
		pq.items = pq.items[:lastIdx]
		pq.down(idx)
		pq.up(idx)
	} else {
		pq.items[lastIdx] = nil
		pq.items = pq.items[:lastIdx]
	}

	delete(pq.itemMap, key)
}

// Pop removes and returns the highest priority item.
func (pq *Queue[K, V]) Pop() (key K, value V, exists bool) {
	if len(pq.items) == 0 {
		return key, value, false
	}

	i := pq.items[0]
	pq.remove(i.key)
	return i.key, i.value, true
}

func (pq *Queue[K, V]) swap(i, j int) {
	pq.items[i], pq.items[j] = pq.items[j], pq.items[i]
	pq.items[i].index = i
	pq.items[j].index = j
}

func (pq *Queue[K, V]) less(i, j int) bool {
	a, b := pq.items[i], pq.items[j]
	if pq.lessF(a.value, b.value) {
		return true
	}
	if pq.lessF(b.value, a.value) {
		return false
	}
	return a.key < b.key
}

// up moves the element at index i up to its proper position.
func (pq *Queue[K, V]) up(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !pq.less(i, parent) {
			break
		}
		pq.swap(i, parent)
		i = parent
	}
}

// down moves the element at index i down to its proper position.
func (pq *Queue[K, V]) down(i int) {
	for {
		smallest := i
		left := 2*i + 1
		right := 2*i + 2

		if left < len(pq.items) && pq.less(left, smallest) {
			smallest = left
		}
		if right < len(pq.items) && pq.less(right, smallest) {
			smallest = right
		}

		if smallest == i {
			break
		}

		pq.swap(i, smallest)
		i = smallest
	}
}
