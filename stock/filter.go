package stock

import (
	"iter"
	"time"
)

// Filter selects trades.
type Filter func(Trade) bool

// All accepts every trade.
func All() Filter {
	return func(Trade) bool { return true }
}

// Day accepts trades on date.
func Day(date time.Time) Filter {
	want := unixDays(date)
	return func(t Trade) bool {
		return unixDays(t.Date) == want
	}
}

// Range accepts trades from from through to, both inclusive.
func Range(from, to time.Time) Filter {
	lo, hi := unixDays(from), unixDays(to)
	return func(t Trade) bool {
		d := unixDays(t.Date)
		return d >= lo && d <= hi
	}
}

// Select yields the trades of seq accepted by f. The first error of seq is
// stored in *errp and ends the sequence.
func Select(seq iter.Seq2[Trade, error], f Filter, errp *error) iter.Seq[Trade] {
	return func(yield func(Trade) bool) {
		for t, err := range seq {
			if err != nil {
				*errp = err
				return
			}
			if f(t) && !yield(t) {
				return
			}
		}
	}
}
