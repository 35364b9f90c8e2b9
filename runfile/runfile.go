package runfile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/davidvella/xsort/recordio"
)

// Common errors that can be returned by run file operations.
var (
	ErrRunClosed    = errors.New("runfile: run already closed")
	ErrCorruptedRun = errors.New("runfile: corrupted run data")
)

// File format constants.
const (
	magicHeader    = int64(0x5852554E) // "XRUN" in hex
	magicFooter    = int64(0x58454E44) // "XEND" in hex
	formatVersion  = int64(1)
	defaultBufSize = 64 * 1024

	tagEntry  byte = 0x01
	tagFooter byte = 0x02
)

// HeaderSize is the number of bytes written before the first entry.
var HeaderSize = int64(binary.Size(magicHeader) + binary.Size(formatVersion))

// Writer appends entries to a run.
type Writer struct {
	buf    *bufio.Writer
	bw     recordio.BinaryWriter
	count  int64
	size   int64
	closed bool
}

// NewWriter writes the run header to w. A bufSize of zero selects the default.
func NewWriter(w io.Writer, bufSize int) (*Writer, error) {
	if w == nil {
		return nil, errors.New("runfile: writer cannot be nil")
	}
	if bufSize <= 0 {
		bufSize = defaultBufSize
	}

	buf := bufio.NewWriterSize(w, bufSize)
	writer := &Writer{
		buf: buf,
		bw:  recordio.NewBinaryWriter(buf),
	}

	if err := writer.writeHeader(); err != nil {
		return nil, fmt.Errorf("runfile: failed to write header: %w", err)
	}

	return writer, nil
}

func (w *Writer) writeHeader() error {
	if _, err := w.bw.WriteInt64(magicHeader); err != nil {
		return err
	}
	if _, err := w.bw.WriteInt64(formatVersion); err != nil {
		return err
	}
	w.size = HeaderSize
	return nil
}

// Write appends a single entry.
func (w *Writer) Write(e recordio.Entry) error {
	if w.closed {
		return ErrRunClosed
	}

	if err := w.buf.WriteByte(tagEntry); err != nil {
		return fmt.Errorf("runfile: failed to write entry tag: %w", err)
	}

	n, err := recordio.Write(w.buf, e)
	if err != nil {
		return fmt.Errorf("runfile: %w", err)
	}

	w.count++
	w.size += n + 1
	return nil
}

// Count returns the number of entries written so far.
func (w *Writer) Count() int64 {
	return w.count
}

// Size returns the number of bytes written so far, including the header.
func (w *Writer) Size() int64 {
	return w.size
}

// Close writes the footer and flushes buffered data. It does not close the
// underlying writer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.buf.WriteByte(tagFooter); err != nil {
		return fmt.Errorf("runfile: failed to write footer: %w", err)
	}
	if _, err := w.bw.WriteInt64(w.count); err != nil {
		return fmt.Errorf("runfile: failed to write footer: %w", err)
	}
	if _, err := w.bw.WriteInt64(magicFooter); err != nil {
		return fmt.Errorf("runfile: failed to write footer: %w", err)
	}
	w.size += 1 + 2*recordio.Int64Size

	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("runfile: failed to flush: %w", err)
	}
	return nil
}

// Reader reads entries from a run in the order they were written.
type Reader struct {
	buf     *bufio.Reader
	br      recordio.BinaryReader
	entries *recordio.Reader
	count   int64
	done    bool
}

// NewReader validates the run header. A bufSize of zero selects the default.
func NewReader(r io.Reader, bufSize int) (*Reader, error) {
	if r == nil {
		return nil, errors.New("runfile: reader cannot be nil")
	}
	if bufSize <= 0 {
		bufSize = defaultBufSize
	}

	buf := bufio.NewReaderSize(r, bufSize)
	reader := &Reader{
		buf:     buf,
		br:      recordio.NewBinaryReader(buf),
		entries: recordio.NewReader(buf),
	}

	if err := reader.checkHeader(); err != nil {
		return nil, err
	}

	return reader, nil
}

func (r *Reader) checkHeader() error {
	header, err := r.br.ReadInt64()
	if err != nil {
		return fmt.Errorf("runfile: invalid header: %w", err)
	}
	if header != magicHeader {
		return ErrCorruptedRun
	}

	version, err := r.br.ReadInt64()
	if err != nil {
		return fmt.Errorf("runfile: invalid version: %w", err)
	}
	if version != formatVersion {
		return fmt.Errorf("runfile: unsupported version %d", version)
	}

	return nil
}

// Next returns the next entry. It returns io.EOF once a valid footer has been
// read, and an error wrapping ErrCorruptedRun if the run ends without one.
func (r *Reader) Next() (recordio.Entry, error) {
	if r.done {
		return recordio.Entry{}, io.EOF
	}

	tag, err := r.buf.ReadByte()
	if errors.Is(err, io.EOF) {
		return recordio.Entry{}, fmt.Errorf("%w: missing footer after %d entries", ErrCorruptedRun, r.count)
	}
	if err != nil {
		return recordio.Entry{}, fmt.Errorf("runfile: failed to read tag: %w", err)
	}

	switch tag {
	case tagEntry:
		e, err := r.entries.Next()
		if errors.Is(err, io.EOF) {
			return recordio.Entry{}, fmt.Errorf("%w: entry %d is empty", ErrCorruptedRun, r.count)
		}
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, recordio.ErrInvalidMagicBytes) || errors.Is(err, recordio.ErrTooLarge) {
			return recordio.Entry{}, fmt.Errorf("%w: entry %d: %v", ErrCorruptedRun, r.count, err)
		}
		if err != nil {
			return recordio.Entry{}, fmt.Errorf("runfile: entry %d: %w", r.count, err)
		}
		r.count++
		return e, nil
	case tagFooter:
		if err := r.checkFooter(); err != nil {
			return recordio.Entry{}, err
		}
		r.done = true
		return recordio.Entry{}, io.EOF
	default:
		return recordio.Entry{}, fmt.Errorf("%w: unknown tag %#x", ErrCorruptedRun, tag)
	}
}

func (r *Reader) checkFooter() error {
	count, err := r.br.ReadInt64()
	if err != nil {
		return fmt.Errorf("%w: invalid footer count: %v", ErrCorruptedRun, err)
	}
	footer, err := r.br.ReadInt64()
	if err != nil {
		return fmt.Errorf("%w: invalid footer magic: %v", ErrCorruptedRun, err)
	}
	if footer != magicFooter {
		return ErrCorruptedRun
	}
	if count != r.count {
		return fmt.Errorf("%w: footer count %d, read %d", ErrCorruptedRun, count, r.count)
	}
	return nil
}
