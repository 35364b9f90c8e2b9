package xsort

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// State is a step of one sort invocation.
type State int

const (
	StateIdle State = iota
	StateDeciding
	StateDirectSort
	StateSpilling
	StateMerging
	StateCleanup
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDeciding:
		return "deciding"
	case StateDirectSort:
		return "direct-sort"
	case StateSpilling:
		return "spilling"
	case StateMerging:
		return "merging"
	case StateCleanup:
		return "cleanup"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// invocation tracks the state of a single Sort or SortTo call.
type invocation struct {
	log   *zap.Logger
	state State
	start time.Time
}

func newInvocation(log *zap.Logger) *invocation {
	return &invocation{
		log:   log,
		state: StateIdle,
		start: time.Now(),
	}
}

func (inv *invocation) enter(to State) {
	inv.log.Debug("sort state", zap.Stringer("from", inv.state), zap.Stringer("to", to))
	inv.state = to
}
