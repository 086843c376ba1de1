// Package frame encodes and decodes the FullFrame and DiffFrame records
// that make up a recording's frame stream, shared between the recorder
// (which only ever writes) and the playback engine (which only ever
// reads/applies), so the wire format lives in exactly one place.
package frame

import (
	"rewind-core-dx/internal/blobstore"
	"rewind-core-dx/internal/codec"
	"rewind-core-dx/internal/region"
)

// TypeFull and TypeDiff are the single-character, NUL-terminated frame
// markers defined by the recording format.
const (
	TypeFull = "F"
	TypeDiff = "D"
)

// Terminator is the sentinel offset value that ends a DiffFrame's
// offset/xor-byte run.
const Terminator = -1

// Magic is the fixed string that terminates a finalized recording, written
// NUL-terminated as the very last bytes of the blob.
const Magic = "MX_RECORDING"

// WriteFull appends a FullFrame at the writer's current position: "F"\0,
// every region's raw bytes in order, then the frame's own start position as
// a padded footer.
func WriteFull(w blobstore.Writer, set *region.Set) (startPos int64, ok bool) {
	startPos = w.Tell()
	if startPos < 0 {
		return 0, false
	}
	if !codec.WriteString(w, TypeFull) {
		return startPos, false
	}
	for _, r := range set.Regions() {
		if !codec.WriteBytes(w, r.Mem) {
			return startPos, false
		}
	}
	if !codec.WritePaddedInt(w, startPos, codec.PaddedWidth) {
		return startPos, false
	}
	return startPos, true
}

// WriteDiff appends a DiffFrame at the writer's current position, walking
// the logical byte concatenation (length Σ N) and emitting an (offset,
// xor-byte) pair for every position where prev and cur disagree. offset is
// the delta from the previously emitted differing position, with the
// running position starting at 0 for the first difference.
func WriteDiff(w blobstore.Writer, prev, cur []byte) (startPos int64, ok bool) {
	startPos = w.Tell()
	if startPos < 0 {
		return 0, false
	}
	if !codec.WriteString(w, TypeDiff) {
		return startPos, false
	}

	var lastWritten int64
	for b := 0; b < len(cur); b++ {
		if prev[b] == cur[b] {
			continue
		}
		offset := int64(b) - lastWritten
		lastWritten = int64(b)
		xor := prev[b] ^ cur[b]
		if !codec.WriteUnpaddedInt(w, offset) || !codec.WriteBytes(w, []byte{xor}) {
			return startPos, false
		}
	}
	if !codec.WriteUnpaddedInt(w, Terminator) {
		return startPos, false
	}
	if !codec.WritePaddedInt(w, startPos, codec.PaddedWidth) {
		return startPos, false
	}
	return startPos, true
}

// ReadType reads the single-character frame marker at the reader's current
// position without consuming anything else.
func ReadType(r blobstore.Reader) (string, bool) {
	return codec.ReadString(r)
}

// ApplyFull reads a FullFrame's region bytes (the marker must already have
// been consumed by ReadType) directly into the live region set, then reads
// and discards the trailing padded start-position footer. Returns the
// frame's recorded start position.
func ApplyFull(r blobstore.Reader, set *region.Set) (startPos int64, ok bool) {
	for _, reg := range set.Regions() {
		n := r.Read(reg.Mem)
		if n != len(reg.Mem) {
			return 0, false
		}
	}
	return codec.ReadPaddedInt(r, codec.PaddedWidth)
}

// ApplyDiff reads a DiffFrame's (offset, xor-byte) pairs (the marker must
// already have been consumed by ReadType) and XORs each into the live
// region set's memory in place, self-inverse, then reads the trailing
// padded start-position footer. Returns the frame's recorded start
// position.
func ApplyDiff(r blobstore.Reader, set *region.Set) (startPos int64, ok bool) {
	var pos int64
	for {
		offset, ok := codec.ReadUnpaddedInt(r)
		if !ok {
			return 0, false
		}
		if offset == Terminator {
			break
		}
		pos += offset
		xorByte, ok := codec.ReadBytes(r, 1)
		if !ok {
			return 0, false
		}
		target := set.ByteAt(pos)
		if target == nil {
			return 0, false
		}
		*target ^= xorByte[0]
	}
	return codec.ReadPaddedInt(r, codec.PaddedWidth)
}
