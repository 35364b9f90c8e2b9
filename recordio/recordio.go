package recordio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"slices"
)

var (
	Uint64Size = int64(binary.Size(uint64(0)))
	Int64Size  = int64(binary.Size(int64(0)))
	// MagicBytes Magic bytes to identify a valid run entry (RUN).
	MagicBytes           = []byte{0x52, 0x55, 0x4E}
	ErrInvalidMagicBytes = errors.New("invalid magic bytes - not a valid run entry")
	ErrTooLarge          = errors.New("length prefix exceeds MaxDataSize")
)

// MaxDataSize is the largest payload, string or byte slice, that can be
// written or read.
const MaxDataSize = 1 << 30

// readChunk bounds how much a length prefix can allocate ahead of the bytes
// actually read.
const readChunk = 64 << 10

// Entry is a single keyed record inside a run.
type Entry struct {
	Key  int64
	Data []byte
}

// BinaryWriter handles writing binary data with error handling.
type BinaryWriter struct {
	w io.Writer
}

func NewBinaryWriter(w io.Writer) BinaryWriter {
	return BinaryWriter{w: w}
}

func (bw BinaryWriter) WriteString(s string) (int64, error) {
	if len(s) > MaxDataSize {
		return 0, fmt.Errorf("error writing string: %w", ErrTooLarge)
	}
	if err := binary.Write(bw.w, binary.LittleEndian, uint64(len(s))); err != nil {
		return 0, fmt.Errorf("error writing string length: %w", err)
	}

	n, err := io.WriteString(bw.w, s)
	if err != nil {
		return Uint64Size, fmt.Errorf("error writing string content: %w", err)
	}

	return Uint64Size + int64(n), nil
}

func (bw BinaryWriter) WriteInt64(i int64) (int64, error) {
	err := binary.Write(bw.w, binary.LittleEndian, i)
	if err != nil {
		return 0, err
	}
	return Int64Size, nil
}

func (bw BinaryWriter) WriteBytes(b []byte) (int64, error) {
	if len(b) > MaxDataSize {
		return 0, fmt.Errorf("error writing bytes: %w", ErrTooLarge)
	}
	if err := binary.Write(bw.w, binary.LittleEndian, uint64(len(b))); err != nil {
		return 0, fmt.Errorf("error writing bytes length: %w", err)
	}

	n, err := bw.w.Write(b)
	if err != nil {
		return Uint64Size, fmt.Errorf("error writing bytes content: %w", err)
	}

	return Uint64Size + int64(n), nil
}

// BinaryReader handles reading binary data with error handling.
type BinaryReader struct {
	r io.Reader
}

func NewBinaryReader(r io.Reader) BinaryReader {
	return BinaryReader{r: r}
}

func (br BinaryReader) ReadString() (string, error) {
	b, err := br.readPrefixed()
	if err != nil {
		return "", fmt.Errorf("error reading string %w", err)
	}
	return string(b), nil
}

func (br BinaryReader) ReadInt64() (int64, error) {
	var value int64
	err := binary.Read(br.r, binary.LittleEndian, &value)
	return value, err
}

func (br BinaryReader) ReadBytes() ([]byte, error) {
	b, err := br.readPrefixed()
	if err != nil {
		return nil, fmt.Errorf("error reading bytes %w", err)
	}
	return b, nil
}

func (br BinaryReader) readPrefixed() ([]byte, error) {
	var length uint64
	if err := binary.Read(br.r, binary.LittleEndian, &length); err != nil {
		return nil, fmt.Errorf("length: %w", err)
	}

	if length > MaxDataSize {
		return nil, fmt.Errorf("length %d: %w", length, ErrTooLarge)
	}

	n := int(length)
	b := make([]byte, 0, min(n, readChunk))
	for len(b) < n {
		step := min(n-len(b), readChunk)
		b = slices.Grow(b, step)
		if _, err := io.ReadFull(br.r, b[len(b):len(b)+step]); err != nil {
			return nil, fmt.Errorf("content: %w", noEOF(err))
		}
		b = b[:len(b)+step]
	}
	return b, nil
}

// Write writes a single entry to the writer.
func Write(w io.Writer, e Entry) (int64, error) {
	var totalBytes int64

	mn, err := w.Write(MagicBytes)
	if err != nil {
		return int64(mn), fmt.Errorf("failed to write magic bytes: %w", err)
	}
	totalBytes += int64(mn)

	bw := NewBinaryWriter(w)

	n, err := bw.WriteInt64(e.Key)
	if err != nil {
		return totalBytes, fmt.Errorf("error writing key: %w", err)
	}
	totalBytes += n

	n, err = bw.WriteBytes(e.Data)
	if err != nil {
		return totalBytes, fmt.Errorf("error writing data: %w", err)
	}
	totalBytes += n

	return totalBytes, nil
}

// ReadEntry reads a single entry from the reader. It returns io.EOF, unwrapped,
// when the reader is exhausted exactly on an entry boundary.
func ReadEntry(r io.Reader) (Entry, error) {
	magicBytes := make([]byte, len(MagicBytes))
	if _, err := io.ReadFull(r, magicBytes); err != nil {
		if errors.Is(err, io.EOF) {
			return Entry{}, io.EOF
		}
		return Entry{}, fmt.Errorf("failed to read magic bytes: %w", err)
	}
	if !bytes.Equal(magicBytes, MagicBytes) {
		return Entry{}, ErrInvalidMagicBytes
	}

	br := NewBinaryReader(r)

	key, err := br.ReadInt64()
	if err != nil {
		return Entry{}, fmt.Errorf("error reading key: %w", noEOF(err))
	}

	data, err := br.ReadBytes()
	if err != nil {
		return Entry{}, fmt.Errorf("error reading data: %w", noEOF(err))
	}

	return Entry{Key: key, Data: data}, nil
}

// noEOF turns an EOF in the middle of an entry into io.ErrUnexpectedEOF so a
// truncated entry is never mistaken for a clean end of input.
func noEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%v: %w", err, io.ErrUnexpectedEOF)
	}
	return err
}

// Reader reads entries sequentially.
type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next returns the next entry or io.EOF once the underlying reader is exhausted.
func (r *Reader) Next() (Entry, error) {
	return ReadEntry(r.r)
}

// Size calculates the total size in bytes that an entry will occupy when written.
func Size(e Entry) int64 {
	return int64(len(MagicBytes)) + Int64Size + Uint64Size + int64(len(e.Data))
}
