// Package region implements the Region Registry and Layout Fingerprint: the
// ordered, immutable-after-init list of caller-owned memory spans that make
// up the entire mutable game state, and the hash used to detect when a
// recording no longer matches the binary that produced it.
package region

import (
	"encoding/binary"
	"fmt"

	"rewind-core-dx/internal/debug"
	"rewind-core-dx/internal/flexhash"
)

// MaxRegionCount is the hard cap on the number of registered regions.
const MaxRegionCount = 1024

// DefaultCapacity is the default compile-time cap on total registered bytes
// (Σ N). Exceeding it does not fail registration; it disables diff
// recording and falls back to full-snapshot-only recording.
const DefaultCapacity = 16 * 1024 * 1024

// FingerprintLength is the fixed width, in bytes, of a layout fingerprint
// before hex rendering.
const FingerprintLength = 10

// Region is one caller-registered, fixed-size memory span. Mem aliases the
// caller's live backing array; the core never copies it except to snapshot
// or restore.
type Region struct {
	Mem         []byte
	Description string
}

// Set is the ordered collection of Regions registered in one run. Build one
// with a Builder during the single initialization phase, then Freeze it.
type Set struct {
	regions    []Region
	capacity   int64
	total      int64
	frozen     bool
	boundaries []int64
}

// Builder is the only way to register regions. It exists so registration
// is confined to a single initialization phase: once the phase ends and
// Freeze is called, the resulting Set accepts no further registrations,
// mirroring the source's guard-flag-enforced init phase with a type instead
// of runtime state.
type Builder struct {
	set    *Set
	logger *debug.Logger
}

// NewBuilder starts a fresh registration phase with the given byte
// capacity (CAP). Pass region.DefaultCapacity if the caller has no
// specific budget in mind.
func NewBuilder(capacity int64, logger *debug.Logger) *Builder {
	return &Builder{
		set: &Set{capacity: capacity},
		logger: logger,
	}
}

// Register adds one region in caller order. Registration is additive and
// ordered; a region's tuple (pointer, length, description) is fixed the
// moment it is registered. Precondition misuse (calling after Freeze) and
// capacity overflow are logged and handled rather than returned as an
// error, matching a "logged and rejected silently" behavior for the
// init-only guard.
func (b *Builder) Register(mem []byte, description string) {
	if b.set.frozen {
		if b.logger != nil {
			b.logger.LogRegion(debug.LogLevelError, "Register called after initialization phase ended; ignored", map[string]interface{}{"description": description})
		}
		return
	}

	if len(b.set.regions) >= MaxRegionCount {
		if b.logger != nil {
			b.logger.LogRegion(debug.LogLevelError, "region count overflow; registration rejected", map[string]interface{}{"description": description, "count": len(b.set.regions)})
		}
		return
	}

	// Capacity overflow degrades diff recording rather than rejecting the
	// registration; accounting happens atomically (the region is either
	// fully added or not added at all — no partial totals).
	b.set.regions = append(b.set.regions, Region{Mem: mem, Description: description})
	b.set.total += int64(len(mem))
	if b.set.total > b.set.capacity && b.logger != nil {
		b.logger.LogRegion(debug.LogLevelWarning, "registered byte total exceeds capacity; diff recording will be disabled", map[string]interface{}{"total": b.set.total, "capacity": b.set.capacity})
	}
}

// Freeze ends the initialization phase and returns the immutable Set.
func (b *Builder) Freeze() *Set {
	b.set.frozen = true
	b.set.buildBoundaries()
	return b.set
}

func (s *Set) buildBoundaries() {
	s.boundaries = make([]int64, len(s.regions)+1)
	var off int64
	for i, r := range s.regions {
		s.boundaries[i] = off
		off += int64(len(r.Mem))
	}
	s.boundaries[len(s.regions)] = off
}

// Snapshot copies the logical concatenation of every region's live bytes
// (in registration order) into dst. len(dst) must equal TotalBytes().
func (s *Set) Snapshot(dst []byte) {
	var off int64
	for _, r := range s.regions {
		off += int64(copy(dst[off:], r.Mem))
	}
}

// ByteAt returns a pointer into the live region memory backing logical
// position pos (0 <= pos < TotalBytes()), so a diff frame's XOR can patch
// the caller's actual game state in place instead of a shadow copy.
func (s *Set) ByteAt(pos int64) *byte {
	// Regions are few enough (<= MaxRegionCount) that a linear scan over
	// cached boundaries is cheap relative to the I/O this supports.
	for i := 0; i < len(s.regions); i++ {
		if pos >= s.boundaries[i] && pos < s.boundaries[i+1] {
			return &s.regions[i].Mem[pos-s.boundaries[i]]
		}
	}
	return nil
}

// Regions returns the ordered region list. The returned slice must not be
// mutated or reordered by the caller.
func (s *Set) Regions() []Region {
	return s.regions
}

// Count returns the number of registered regions.
func (s *Set) Count() int {
	return len(s.regions)
}

// TotalBytes returns Σ N across every registered region.
func (s *Set) TotalBytes() int64 {
	return s.total
}

// Capacity returns the configured byte budget (CAP).
func (s *Set) Capacity() int64 {
	return s.capacity
}

// OverCapacity reports whether Σ N exceeds CAP, which disables diff
// recording while keeping full-snapshot recording available.
func (s *Set) OverCapacity() bool {
	return s.total > s.capacity
}

// Fingerprint computes the layout fingerprint: a FlexHash of
// D_0‖D_1‖…‖D_{k-1}, each description length-prefixed (by its caller-visible
// byte length, not including any terminator) before its raw bytes, rendered
// as uppercase hex. Two runs match iff their fingerprints are byte-equal and
// their (count, total, per-region description, per-region length) tuples
// are identical — the fingerprint alone only covers descriptions, not
// sizes, so saverestore.Restore checks both independently, matching the source's
// intentional behavior of keeping the two checks separate.
func (s *Set) Fingerprint() (string, error) {
	h, err := flexhash.Init(FingerprintLength)
	if err != nil {
		return "", err
	}
	for _, r := range s.regions {
		var lenPrefix [4]byte
		binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(r.Description)))
		h.Add(lenPrefix[:])
		h.Add([]byte(r.Description))
	}
	h.Finish()
	return fmt.Sprintf("%X", h.Bytes()), nil
}

// Metadata is the per-region (description, length) pair carried in a
// SaveBlob header and checked independently of the fingerprint.
type Metadata struct {
	Description string
	Length      int64
}

// MetadataList returns the per-region (description, length) pairs in
// registration order.
func (s *Set) MetadataList() []Metadata {
	out := make([]Metadata, len(s.regions))
	for i, r := range s.regions {
		out[i] = Metadata{Description: r.Description, Length: int64(len(r.Mem))}
	}
	return out
}
