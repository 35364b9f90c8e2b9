// Package priority implements keyed priority queues: Queue, a binary heap
// with a map for O(1) key lookups, and Tree, the same contract kept in order
// by a B-tree (github.com/google/btree).
//
// The ordering is determined by a user-provided comparison function that
// returns true if a has higher priority than b. Values that compare equal
// are ordered by key, lowest first, so draining a queue is deterministic.
// In an external sort merge the key is the index of the run a value came
// from and the value is that run's current head.
//
// Key features:
//   - Generic over any ordered key type and any value type
//   - O(log n) insertion and deletion
//   - Support for priority updates
//
// Basic usage:
//
//	// Create a max-heap priority queue
//	pq := priority.NewQueue[int, int64](func(a, b int64) bool {
//	    return a > b
//	})
//
//	pq.Set(0, 50)
//	pq.Set(1, 70)
//	pq.Set(2, 70)
//
//	// Remove and return highest priority item: run 1, ahead of run 2 on the tie
//	run, key, _ := pq.Pop()
//
//	// Update priority
//	pq.Set(0, 90)
package priority
