// Package codec converts records to and from the byte payloads stored in runs.
package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Codec serializes records of type R.
type Codec[R any] interface {
	Marshal(r R) ([]byte, error)
	Unmarshal(data []byte) (R, error)
}

// Func adapts a pair of functions to a Codec.
type Func[R any] struct {
	MarshalFunc   func(R) ([]byte, error)
	UnmarshalFunc func([]byte) (R, error)
}

func (f Func[R]) Marshal(r R) ([]byte, error) {
	return f.MarshalFunc(r)
}

func (f Func[R]) Unmarshal(data []byte) (R, error) {
	return f.UnmarshalFunc(data)
}

// Gob implements Codec using encoding/gob. Each record is encoded as a
// self-contained stream, so runs never depend on encoder state.
type Gob[R any] struct{}

func NewGob[R any]() Gob[R] {
	return Gob[R]{}
}

func (Gob[R]) Marshal(r R) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, fmt.Errorf("codec: gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (Gob[R]) Unmarshal(data []byte) (R, error) {
	var value R
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&value); err != nil {
		return value, fmt.Errorf("codec: gob decode: %w", err)
	}
	return value, nil
}

// Bytes passes byte slices through unchanged.
type Bytes struct{}

func (Bytes) Marshal(b []byte) ([]byte, error) {
	return b, nil
}

func (Bytes) Unmarshal(data []byte) ([]byte, error) {
	return data, nil
}
