// Package recordio implements the binary entry format used to store sorted
// runs. Every entry carries the sort key next to an opaque payload so that a
// run can be merged without decoding the payload or calling back into the
// key extractor.
//
// Layout of a single entry:
//   - Magic bytes "RUN" (3 bytes)
//   - Key (int64, little endian)
//   - Payload length (uint64, little endian)
//   - Payload bytes
//
// Basic usage:
//
//	var buf bytes.Buffer
//	n, err := recordio.Write(&buf, recordio.Entry{Key: 42, Data: []byte("payload")})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	r := recordio.NewReader(&buf)
//	for {
//	    entry, err := r.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(entry.Key)
//	}
//
//	// Calculate entry size
//	size := recordio.Size(entry)
//
// Length prefixes above MaxDataSize are rejected with ErrTooLarge, and
// payloads are read in bounded pieces, so a corrupt prefix fails the read
// instead of forcing a huge allocation.
//
// The BinaryWriter and BinaryReader helpers are exported so that record
// codecs can share the same length-prefixed primitives.
package recordio
