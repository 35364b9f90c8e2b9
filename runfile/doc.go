// Package runfile frames a sorted run as a self-describing byte stream. A run
// file is written once, front to back, and read once, front to back; it has
// no index and supports no random access.
//
// File Format:
//   - Header (16 bytes):
//   - Magic number (8 bytes, "XRUN" in hex)
//   - Format version (8 bytes)
//   - Entries:
//   - Tag byte 0x01 followed by a recordio entry, repeated
//   - Footer:
//   - Tag byte 0x02
//   - Entry count (8 bytes)
//   - Magic number (8 bytes, "XEND" in hex)
//
// The footer lets a reader tell a complete run from one that was cut short,
// so a truncated file surfaces as ErrCorruptedRun instead of a silently
// shorter run.
//
// Basic usage:
//
//	w, err := runfile.NewWriter(file, 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := w.Write(recordio.Entry{Key: 10, Data: payload}); err != nil {
//	    log.Fatal(err)
//	}
//	if err := w.Close(); err != nil {
//	    log.Fatal(err)
//	}
//
//	r, err := runfile.NewReader(file, 0)
//	for {
//	    e, err := r.Next()
//	    if errors.Is(err, io.EOF) {
//	        break
//	    }
//	    ...
//	}
package runfile
