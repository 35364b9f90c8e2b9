package priority

import (
	"cmp"

	"github.com/google/btree"
)

const treeDegree = 8

// Tree is a keyed priority queue kept in key order by a B-tree. It has the
// same ordering rules as Queue and trades heap sift-downs for ordered
// insertion.
type Tree[K cmp.Ordered, V any] struct {
	tree    *btree.BTreeG[treeItem[K, V]]
	itemMap map[K]treeItem[K, V]
}

type treeItem[K cmp.Ordered, V any] struct {
	key   K
	value V
}

// NewTree creates a tree ordered by less, then by key.
func NewTree[K cmp.Ordered, V any](less func(a, b V) bool) *Tree[K, V] {
	return &Tree[K, V]{
		tree: btree.NewG(treeDegree, func(a, b treeItem[K, V]) bool {
			if less(a.value, b.value) {
				return true
			}
			if less(b.value, a.value) {
				return false
			}
			return a.key < b.key
		}),
		itemMap: make(map[K]treeItem[K, V]),
	}
}

func (t *Tree[K, V]) Len() int {
	return t.tree.Len()
}

// Set adds a new key or replaces the value of an existing one.
func (t *Tree[K, V]) Set(key K, value V) {
	if old, ok := t.itemMap[key]; ok {
		t.tree.Delete(old)
	}
	it := treeItem[K, V]{key: key, value: value}
	t.tree.ReplaceOrInsert(it)
	t.itemMap[key] = it
}

// Push is Set under the name merge frontiers use.
func (t *Tree[K, V]) Push(key K, value V) {
	t.Set(key, value)
}

// Pop removes and returns the highest priority item.
func (t *Tree[K, V]) Pop() (key K, value V, exists bool) {
	it, ok := t.tree.DeleteMin()
	if !ok {
		return key, value, false
	}
	delete(t.itemMap, it.key)
	return it.key, it.value, true
}
