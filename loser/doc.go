// Package loser implements a tournament tree (also known as a loser tree) for efficiently
// merging multiple sorted sequences. This implementation is based on the work by Bryan
// Boreham (https://github.com/bboreham/go-loser).
//
// A loser tree is a binary tree structure where each internal node holds the "loser" of
// a comparison between its children, and the root holds the overall "winner". Replacing
// the winner costs exactly one comparison per level, which makes it a good frontier for
// a k-way merge: fewer comparisons than a binary heap for the same O(log k) bound.
//
// The tree has a fixed number of slots, one per merged sequence. Callers push the head
// of each sequence into its slot, pop the winner, and push the next value of the winning
// slot (or nothing, once that sequence is exhausted). Empty slots lose every game.
//
// Basic usage:
//
//	tree := loser.New(3, func(a, b int64) bool { return a > b })
//	tree.Push(0, 9)
//	tree.Push(1, 12)
//	tree.Push(2, 4)
//
//	slot, v, _ := tree.Pop() // slot 1, value 12
//	tree.Push(slot, 7)       // next value from sequence 1
//
// Implementation Details:
// The loser tree is implemented as a binary tree laid out in an array where:
//   - For node N, its children are at positions 2N and 2N+1
//   - Leaf nodes are stored in positions M to 2M-1 (where M is the number of slots)
//   - Internal nodes are stored in positions 1 to M-1
//   - Node 0 is special, containing the current winner
//
// Games are played lazily: the tree is built on the first Pop, and the path of a popped
// slot is replayed when it is refilled or on the following Pop.
package loser
