// Package loser is adapted from Bryan Boreham's talk code:
// https://github.com/bboreham/go-loser/blob/iter/tree.go.
package loser

// A loser tree is a binary tree laid out such that nodes N and N+1 have parent N/2.
// We store M leaf nodes in positions M...2M-1, and M-1 internal nodes in positions 1..M-1.
// Node 0 is a special node, containing the winner of the contest.
//
// Leaves are fed by Push instead of pulled from sequences, so the tree can
// sit behind the same slot-indexed interface as a heap: Pop hands out the
// winning slot and the caller pushes that slot's next value, or nothing once
// the slot is exhausted.
type Tree[V any] struct {
	nodes       []node[V]
	k           int
	size        int
	less        func(a, b V) bool
	initialized bool
	// pending is the leaf popped last, waiting for a refill or a replay.
	pending int
}

type node[V any] struct {
	index int  // The loser for internal nodes, the winner for node 0, itself for leaves.
	value V    // Value copied from the loser node, or winner for node 0.
	ok    bool // False for empty leaves, which lose every game.
}

// New creates a tree with k slots. less returns true if a has higher
// priority than b; equal values are won by the lower slot.
func New[V any](k int, less func(a, b V) bool) *Tree[V] {
	t := &Tree[V]{
		nodes:   make([]node[V], 2*k),
		k:       k,
		less:    less,
		pending: -1,
	}
	for pos := k; pos < 2*k; pos++ {
		t.nodes[pos].index = pos
	}
	return t
}

// Len returns the number of slots holding a value.
func (t *Tree[V]) Len() int {
	return t.size
}

// Push sets the value of slot. Refilling the slot returned by the last Pop
// replays a single path; any other push rebuilds the tree.
func (t *Tree[V]) Push(slot int, v V) {
	pos := slot + t.k
	leaf := &t.nodes[pos]
	if !leaf.ok {
		t.size++
	}
	leaf.value, leaf.ok = v, true

	if !t.initialized {
		return
	}
	if pos == t.pending {
		t.pending = -1
		t.replayGames(pos)
		return
	}
	t.pending = -1
	t.initialize()
}

// Pop removes and returns the winning slot and its value.
func (t *Tree[V]) Pop() (slot int, value V, ok bool) {
	switch {
	case !t.initialized:
		t.initialize()
	case t.pending >= 0:
		pos := t.pending
		t.pending = -1
		t.replayGames(pos)
	}
	if t.size == 0 {
		return -1, value, false
	}

	winner := t.nodes[0].index
	leaf := &t.nodes[winner]
	value = leaf.value

	var zero V
	leaf.value, leaf.ok = zero, false
	t.size--
	t.pending = winner
	return winner - t.k, value, true
}

func (t *Tree[V]) initialize() {
	t.initialized = true
	if t.k == 0 {
		return
	}
	winner := t.playGame(1)
	t.nodes[0] = t.nodes[winner]
}

// beats reports whether a wins against b.
func (t *Tree[V]) beats(a, b node[V]) bool {
	if !a.ok {
		return false
	}
	if !b.ok {
		return true
	}
	if t.less(a.value, b.value) {
		return true
	}
	if t.less(b.value, a.value) {
		return false
	}
	return a.index < b.index
}

// Find the winner at position pos; if it is a non-leaf node, store the loser.
// pos must be >= 1 and < len(t.nodes).
func (t *Tree[V]) playGame(pos int) int {
	nodes := t.nodes
	if pos >= t.k {
		return pos
	}
	left := t.playGame(pos * 2)
	right := t.playGame(pos*2 + 1)
	var loser, winner int
	if t.beats(nodes[left], nodes[right]) {
		loser, winner = right, left
	} else {
		loser, winner = left, right
	}
	nodes[pos] = nodes[loser]
	return winner
}

// Starting at pos, which is a winner, re-consider all values up to the root.
func (t *Tree[V]) replayGames(pos int) {
	nodes := t.nodes
	winner := nodes[pos]
	for n := parent(pos); n != 0; n = parent(n) {
		if t.beats(nodes[n], winner) {
			// Record the old winner as the loser here, and the old loser is the new winner.
			nodes[n], winner = winner, nodes[n]
		}
	}
	nodes[0] = winner
}

func parent(i int) int { return i >> 1 }
