package stock

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the trading date format used in CSV files and flags.
const DateLayout = "2006-01-02"

// Trade is one stock's trading summary for one day.
type Trade struct {
	Code            string
	Name            string
	Date            time.Time
	Volume          int64
	Amount          int64
	MaxSingleVolume int64
	MaxSingleAmount int64
	MinSingleVolume int64
	MinSingleAmount int64
}

// ParseDate parses a date in DateLayout.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("stock: invalid date %q: %w", s, err)
	}
	return d, nil
}

// SortKey selects the field trades are ranked by.
type SortKey int

const (
	ByVolume SortKey = iota
	ByAmount
)

func (k SortKey) String() string {
	switch k {
	case ByVolume:
		return "volume"
	case ByAmount:
		return "amount"
	default:
		return fmt.Sprintf("SortKey(%d)", int(k))
	}
}

// ParseSortKey parses "volume" or "amount".
func ParseSortKey(s string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "volume":
		return ByVolume, nil
	case "amount":
		return ByAmount, nil
	default:
		return 0, fmt.Errorf("stock: unknown sort key %q", s)
	}
}

// Extract returns the field of t selected by k.
func (k SortKey) Extract(t Trade) (int64, error) {
	switch k {
	case ByVolume:
		return t.Volume, nil
	case ByAmount:
		return t.Amount, nil
	default:
		return 0, fmt.Errorf("stock: unknown sort key %v", k)
	}
}
