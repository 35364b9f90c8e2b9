package stock

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"

	"github.com/spkg/bom"
)

// Header is the first line written by WriteCSV. Readers skip the first line
// whatever it holds.
var Header = []string{
	"code", "name", "date", "volume", "amount",
	"max_single_volume", "max_single_amount",
	"min_single_volume", "min_single_amount",
}

// ParseRecord parses one CSV line in Header order.
func ParseRecord(fields []string) (Trade, error) {
	if len(fields) != len(Header) {
		return Trade{}, fmt.Errorf("stock: want %d fields, got %d", len(Header), len(fields))
	}

	date, err := ParseDate(fields[2])
	if err != nil {
		return Trade{}, err
	}

	t := Trade{
		Code: strings.TrimSpace(fields[0]),
		Name: strings.TrimSpace(fields[1]),
		Date: date,
	}
	for i, dst := range []*int64{
		&t.Volume, &t.Amount,
		&t.MaxSingleVolume, &t.MaxSingleAmount,
		&t.MinSingleVolume, &t.MinSingleAmount,
	} {
		col := i + 3
		if *dst, err = strconv.ParseInt(strings.TrimSpace(fields[col]), 10, 64); err != nil {
			return Trade{}, fmt.Errorf("stock: %s: %w", Header[col], err)
		}
	}
	return t, nil
}

// Records reads trades from CSV. A leading UTF-8 byte order mark and the
// header line are skipped. Iteration stops after the first error, which
// carries the line number.
func Records(r io.Reader) iter.Seq2[Trade, error] {
	return func(yield func(Trade, error) bool) {
		cr := csv.NewReader(bom.NewReader(r))
		cr.FieldsPerRecord = -1
		cr.ReuseRecord = true

		if _, err := cr.Read(); err != nil {
			if !errors.Is(err, io.EOF) {
				yield(Trade{}, fmt.Errorf("stock: header: %w", err))
			}
			return
		}

		for {
			fields, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Trade{}, err)
				return
			}
			t, err := ParseRecord(fields)
			if err != nil {
				line, _ := cr.FieldPos(0)
				yield(Trade{}, fmt.Errorf("line %d: %w", line, err))
				return
			}
			if !yield(t, nil) {
				return
			}
		}
	}
}

// Writer writes trades as CSV with a byte order mark and Header.
type Writer struct {
	w      io.Writer
	cw     *csv.Writer
	fields []string
	begun  bool
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:      w,
		cw:     csv.NewWriter(w),
		fields: make([]string, len(Header)),
	}
}

func (w *Writer) begin() error {
	if w.begun {
		return nil
	}
	w.begun = true
	if _, err := io.WriteString(w.w, "\uFEFF"); err != nil {
		return err
	}
	return w.cw.Write(Header)
}

func (w *Writer) Write(t Trade) error {
	if err := w.begin(); err != nil {
		return err
	}

	w.fields[0] = t.Code
	w.fields[1] = t.Name
	w.fields[2] = t.Date.Format(DateLayout)
	for i, v := range []int64{
		t.Volume, t.Amount,
		t.MaxSingleVolume, t.MaxSingleAmount,
		t.MinSingleVolume, t.MinSingleAmount,
	} {
		w.fields[i+3] = strconv.FormatInt(v, 10)
	}
	return w.cw.Write(w.fields)
}

// Flush writes buffered lines and reports any write error. The header is
// written even if no trade was.
func (w *Writer) Flush() error {
	if err := w.begin(); err != nil {
		return err
	}
	w.cw.Flush()
	return w.cw.Error()
}

// WriteCSV writes every trade of seq and flushes.
func WriteCSV(w io.Writer, seq iter.Seq[Trade]) (int, error) {
	cw := NewWriter(w)
	n := 0
	for t := range seq {
		if err := cw.Write(t); err != nil {
			return n, err
		}
		n++
	}
	return n, cw.Flush()
}
