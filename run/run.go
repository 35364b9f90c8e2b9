package run

import (
	"context"
	"errors"
	"fmt"

	"github.com/davidvella/xsort/recordio"
)

// ID identifies a run inside a Store.
type ID string

// Handle describes a fully written run.
type Handle struct {
	ID      ID
	Records int
	Bytes   int64
	MaxKey  int64
	MinKey  int64
}

// Writer appends entries to a new run. Close seals the run; a run that was
// never closed must still be removed through its Store.
type Writer interface {
	ID() ID
	Write(e recordio.Entry) error
	Close() error
}

// Reader yields the entries of a run in write order and io.EOF at the end.
type Reader interface {
	Next() (recordio.Entry, error)
	Close() error
}

// Store creates, reads and removes runs. Implementations must be safe for
// concurrent use.
type Store interface {
	// Create allocates a run with a fresh ID.
	Create(ctx context.Context) (Writer, error)

	// Open returns a cursor positioned at the first entry of a run.
	Open(ctx context.Context, id ID) (Reader, error)

	// Remove deletes a run and everything stored for it.
	Remove(ctx context.Context, id ID) error

	// List returns the IDs of all runs currently held.
	List(ctx context.Context) ([]ID, error)
}

// Op names the storage operation that failed.
type Op string

const (
	OpWrite  Op = "write"
	OpRead   Op = "read"
	OpRemove Op = "remove"
)

var (
	ErrWriteFailed  = errors.New("run: write failed")
	ErrReadFailed   = errors.New("run: read failed")
	ErrRemoveFailed = errors.New("run: remove failed")
)

// Error records a failed storage operation on a run.
type Error struct {
	Op  Op
	ID  ID
	Err error
}

func (e *Error) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("run %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("run %s %s: %v", e.Op, e.ID, e.Err)
}

// Unwrap exposes both the sentinel for Op and the underlying cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Op.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (op Op) sentinel() error {
	switch op {
	case OpWrite:
		return ErrWriteFailed
	case OpRead:
		return ErrReadFailed
	case OpRemove:
		return ErrRemoveFailed
	default:
		return nil
	}
}

// Wrap returns err as an *Error for op, or nil when err is nil. Errors that
// are already an *Error are returned unchanged.
func Wrap(op Op, id ID, err error) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	return &Error{Op: op, ID: id, Err: err}
}
