// Package codec implements the padded and unpadded integer and
// NUL-terminated string encodings used throughout the save/restore and
// recording formats, plus the bulk raw-byte copy helpers built on top of a
// blobstore.Writer/Reader pair. Variable-width decimal integers embedded in
// a binary stream are unusual but intentional: they make the stream human
// inspectable and sidestep endianness. This encoding is preserved exactly;
// no native binary integers are substituted.
package codec

import (
	"fmt"
	"strconv"

	"rewind-core-dx/internal/blobstore"
)

// PaddedWidth is the fixed width, in bytes, of every padded integer in the
// recording format (frame footers, index entries, index length). Keeping
// this width invariant across a playback blob is required for backward
// scans, which land on a frame's start by stepping back exactly this many
// bytes and reading.
const PaddedWidth = 12

// WriteUnpaddedInt writes v as a variable-width decimal string terminated
// by a single NUL byte.
func WriteUnpaddedInt(w blobstore.Writer, v int64) bool {
	return WriteString(w, strconv.FormatInt(v, 10))
}

// ReadUnpaddedInt reads a NUL-terminated variable-width decimal integer.
func ReadUnpaddedInt(r blobstore.Reader) (int64, bool) {
	s, ok := ReadString(r)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// WritePaddedInt writes v as its decimal representation followed by NUL
// bytes, exactly width bytes total. v's decimal representation (plus one
// terminator NUL) must fit within width.
func WritePaddedInt(w blobstore.Writer, v int64, width int) bool {
	s := strconv.FormatInt(v, 10)
	if len(s)+1 > width {
		return false
	}
	buf := make([]byte, width)
	copy(buf, s)
	return w.Write(buf)
}

// ReadPaddedInt reads exactly width bytes and parses the decimal digits up
// to the first NUL (or end of the field if unterminated).
func ReadPaddedInt(r blobstore.Reader, width int) (int64, bool) {
	buf := make([]byte, width)
	n := r.Read(buf)
	if n != width {
		return 0, false
	}
	end := width
	for i, b := range buf {
		if b == 0 {
			end = i
			break
		}
	}
	v, err := strconv.ParseInt(string(buf[:end]), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// WriteString writes s followed by a single NUL terminator.
func WriteString(w blobstore.Writer, s string) bool {
	if !w.Write([]byte(s)) {
		return false
	}
	return w.Write([]byte{0})
}

// ReadString reads bytes up to and including the next NUL, returning the
// bytes before it. Reads one byte at a time; callers reading large region
// descriptions should prefer ReadBytes with a known length instead.
func ReadString(r blobstore.Reader) (string, bool) {
	var out []byte
	one := make([]byte, 1)
	for {
		n := r.Read(one)
		if n != 1 {
			return "", false
		}
		if one[0] == 0 {
			return string(out), true
		}
		out = append(out, one[0])
	}
}

// WriteBytes writes p verbatim, with no framing.
func WriteBytes(w blobstore.Writer, p []byte) bool {
	return w.Write(p)
}

// ReadBytes reads exactly n raw bytes with no framing.
func ReadBytes(r blobstore.Reader, n int) ([]byte, bool) {
	buf := make([]byte, n)
	read := r.Read(buf)
	if read != n {
		return nil, false
	}
	return buf, true
}

// CopyAll streams every remaining byte of src (from its current position to
// its end) into dst, in chunks. Used by finalization to splice the index
// blob onto the tail of the recording blob, and by crash recovery to splice
// the partial recording and its index into a recovery artifact.
func CopyAll(dst blobstore.Writer, src blobstore.Reader, length int64) error {
	const chunkSize = 64 * 1024
	buf := make([]byte, chunkSize)
	var copied int64
	for copied < length {
		want := chunkSize
		if remaining := length - copied; remaining < int64(chunkSize) {
			want = int(remaining)
		}
		n := src.Read(buf[:want])
		if n <= 0 {
			return fmt.Errorf("codec: short read during copy at offset %d of %d", copied, length)
		}
		if !dst.Write(buf[:n]) {
			return fmt.Errorf("codec: write failed during copy at offset %d of %d", copied, length)
		}
		copied += int64(n)
	}
	return nil
}
