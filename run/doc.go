/*
Package run models the sorted runs an external sort spills to storage and
the set of runs owned by one sort invocation.

A run is written once, read once and then removed. Stores hand out IDs on
Create; a Set records every run created for an invocation so that each one
is removed exactly once, whether the sort succeeds or fails:

	set := run.NewSet(store)
	defer set.ReleaseAll(ctx)

Storage failures are reported as *Error values, which match ErrWriteFailed,
ErrReadFailed or ErrRemoveFailed and the underlying cause with errors.Is.
*/
package run
