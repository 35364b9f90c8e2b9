package merge

import (
	"fmt"
	"strings"

	"github.com/davidvella/xsort/loser"
	"github.com/davidvella/xsort/priority"
)

// Frontier holds the current head of every open run, indexed by slot.
// Pop returns the head with the highest priority; values that tie are
// returned lowest slot first.
type Frontier[V any] interface {
	Push(slot int, v V)
	Pop() (slot int, v V, ok bool)
	Len() int
}

// FrontierKind selects a Frontier implementation.
type FrontierKind int

const (
	// FrontierHeap uses a binary heap.
	FrontierHeap FrontierKind = iota
	// FrontierBTree uses sorted insertion into a B-tree.
	FrontierBTree
	// FrontierLoser uses a tournament tree.
	FrontierLoser
)

// FrontierKinds lists every implementation.
var FrontierKinds = []FrontierKind{FrontierHeap, FrontierBTree, FrontierLoser}

func (k FrontierKind) String() string {
	switch k {
	case FrontierHeap:
		return "heap"
	case FrontierBTree:
		return "btree"
	case FrontierLoser:
		return "loser"
	default:
		return fmt.Sprintf("FrontierKind(%d)", int(k))
	}
}

// ParseFrontierKind parses the name returned by String.
func ParseFrontierKind(s string) (FrontierKind, error) {
	switch strings.ToLower(s) {
	case "", "heap":
		return FrontierHeap, nil
	case "btree":
		return FrontierBTree, nil
	case "loser":
		return FrontierLoser, nil
	default:
		return 0, fmt.Errorf("merge: unknown frontier %q", s)
	}
}

// NewFrontier returns a frontier of the given kind for k slots. less
// returns true if a has higher priority than b.
func NewFrontier[V any](kind FrontierKind, k int, less func(a, b V) bool) (Frontier[V], error) {
	switch kind {
	case FrontierHeap:
		return priority.NewQueue[int, V](less), nil
	case FrontierBTree:
		return priority.NewTree[int, V](less), nil
	case FrontierLoser:
		return loser.New(k, less), nil
	default:
		return nil, fmt.Errorf("merge: unknown frontier %v", kind)
	}
}
