package xsort

import "context"

// Emitter receives sorted records.
type Emitter[R any] interface {
	// Emit is called once per record, in order. Returning an error stops
	// the sort and the error is returned by SortTo unchanged.
	Emit(ctx context.Context, r R) error
}

// EmitterFunc is a function type that implements Emitter.
type EmitterFunc[R any] func(ctx context.Context, r R) error

// Emit calls the function.
func (f EmitterFunc[R]) Emit(ctx context.Context, r R) error {
	return f(ctx, r)
}
