package stock

import (
	"bytes"
	"fmt"
	"time"

	"github.com/davidvella/xsort/recordio"
)

// Codec encodes trades for spilling: code and name as length-prefixed
// strings, then the date as Unix days and the six counters, all int64.
type Codec struct{}

func (Codec) Marshal(t Trade) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(2*int(recordio.Uint64Size) + len(t.Code) + len(t.Name) + 7*int(recordio.Int64Size))
	bw := recordio.NewBinaryWriter(&buf)

	if _, err := bw.WriteString(t.Code); err != nil {
		return nil, err
	}
	if _, err := bw.WriteString(t.Name); err != nil {
		return nil, err
	}
	for _, v := range []int64{
		unixDays(t.Date),
		t.Volume, t.Amount,
		t.MaxSingleVolume, t.MaxSingleAmount,
		t.MinSingleVolume, t.MinSingleAmount,
	} {
		if _, err := bw.WriteInt64(v); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (Codec) Unmarshal(data []byte) (Trade, error) {
	br := recordio.NewBinaryReader(bytes.NewReader(data))

	var (
		t   Trade
		err error
	)
	if t.Code, err = br.ReadString(); err != nil {
		return Trade{}, fmt.Errorf("stock: code: %w", err)
	}
	if t.Name, err = br.ReadString(); err != nil {
		return Trade{}, fmt.Errorf("stock: name: %w", err)
	}

	var days int64
	for _, dst := range []*int64{
		&days,
		&t.Volume, &t.Amount,
		&t.MaxSingleVolume, &t.MaxSingleAmount,
		&t.MinSingleVolume, &t.MinSingleAmount,
	} {
		if *dst, err = br.ReadInt64(); err != nil {
			return Trade{}, fmt.Errorf("stock: truncated trade: %w", err)
		}
	}
	t.Date = fromUnixDays(days)
	return t, nil
}

const day = 24 * time.Hour

func unixDays(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / int64(day/time.Second)
}

func fromUnixDays(n int64) time.Time {
	return time.Unix(n*int64(day/time.Second), 0).UTC()
}
