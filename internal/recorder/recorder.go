// Package recorder implements the recording side of the engine: it writes
// a SaveBlob header, an initial full snapshot, then per-step diffs with
// periodic full snapshots, maintains a side-car index of keyframe
// positions, and finalizes by splicing the index onto the tail of the
// recording with a magic footer.
package recorder

import (
	"fmt"

	"rewind-core-dx/internal/blobstore"
	"rewind-core-dx/internal/codec"
	"rewind-core-dx/internal/debug"
	"rewind-core-dx/internal/frame"
	"rewind-core-dx/internal/region"
	"rewind-core-dx/internal/saverestore"
)

// DefaultSnapshotPeriod is K: the number of DiffFrames emitted between two
// FullFrames when diff recording is enabled.
const DefaultSnapshotPeriod = 60

// Recorder owns the two blob handles and ring buffers for one recording
// run. A Recorder is single-use: Start it once, Step it once per host
// tick, and Finalize it once.
type Recorder struct {
	store  blobstore.Store
	set    *region.Set
	logger *debug.Logger
	period int64

	recordingName string
	indexName     string

	w      blobstore.Writer
	indexW blobstore.Writer

	// Ring: "last" is the most recently captured snapshot, "scratch" is
	// reused as the destination for the next one; the two rotate every
	// step instead of being reallocated.
	last, scratch []byte

	diffsSinceFull int64
	diffsDisabled  bool

	running bool
}

// New constructs a Recorder for set, bound to the given blob names. period
// is K (pass DefaultSnapshotPeriod if the caller has no override).
func New(store blobstore.Store, set *region.Set, logger *debug.Logger, recordingName, indexName string, period int64) *Recorder {
	if period <= 0 {
		period = DefaultSnapshotPeriod
	}
	return &Recorder{
		store:         store,
		set:           set,
		logger:        logger,
		period:        period,
		recordingName: recordingName,
		indexName:     indexName,
		diffsDisabled: set.OverCapacity(),
	}
}

// Start opens both blob handles, writes the SaveBlob header, and emits the
// initial FullFrame. On any failure it releases whatever handles it opened
// and returns an error; the caller should treat the recorder as not
// running.
func (rec *Recorder) Start() error {
	w, ok := rec.store.OpenWrite(rec.recordingName)
	if !ok {
		return rec.fail("open %q for write failed", rec.recordingName)
	}
	indexW, ok := rec.store.OpenWrite(rec.indexName)
	if !ok {
		w.Close()
		return rec.fail("open %q for write failed", rec.indexName)
	}

	if err := saverestore.WriteHeader(w, rec.recordingName, rec.set, rec.logger); err != nil {
		w.Close()
		indexW.Close()
		return err
	}

	n := rec.set.TotalBytes()
	rec.last = make([]byte, n)
	rec.scratch = make([]byte, n)

	startPos, ok := frame.WriteFull(w, rec.set)
	if !ok {
		w.Close()
		indexW.Close()
		return rec.fail("initial FullFrame write failed")
	}
	if !codec.WritePaddedInt(indexW, startPos, codec.PaddedWidth) {
		w.Close()
		indexW.Close()
		return rec.fail("initial index entry write failed")
	}

	rec.set.Snapshot(rec.last)
	rec.diffsSinceFull = 0
	rec.w = w
	rec.indexW = indexW
	rec.running = true
	return nil
}

// Step captures one tick of live state: a DiffFrame against the last
// captured snapshot (or, when Σ N exceeds the region set's capacity, a
// FullFrame every step, per the cap-degradation rule). Every K-th diff is
// followed by an extra FullFrame, diff-before-full so that forward
// playback across a FullFrame is a no-op and reverse playback can always
// find a diff to un-apply.
func (rec *Recorder) Step() error {
	if !rec.running {
		return fmt.Errorf("recorder: Step called while not running")
	}

	if rec.diffsDisabled {
		startPos, ok := frame.WriteFull(rec.w, rec.set)
		if !ok {
			return rec.fail("FullFrame write failed")
		}
		if !codec.WritePaddedInt(rec.indexW, startPos, codec.PaddedWidth) {
			return rec.fail("index entry write failed")
		}
		return nil
	}

	rec.set.Snapshot(rec.scratch)
	if _, ok := frame.WriteDiff(rec.w, rec.last, rec.scratch); !ok {
		return rec.fail("DiffFrame write failed")
	}
	rec.last, rec.scratch = rec.scratch, rec.last

	rec.diffsSinceFull++
	if rec.diffsSinceFull == rec.period {
		startPos, ok := frame.WriteFull(rec.w, rec.set)
		if !ok {
			return rec.fail("periodic FullFrame write failed")
		}
		if !codec.WritePaddedInt(rec.indexW, startPos, codec.PaddedWidth) {
			return rec.fail("periodic index entry write failed")
		}
		rec.diffsSinceFull = 0
	}
	return nil
}

// Finalize closes the index blob, splices its contents onto the tail of
// the recording blob, deletes the index blob, and appends the padded index
// length and the magic footer. After Finalize, recordingName is a valid
// playback blob and the Recorder must not be Stepped again.
func (rec *Recorder) Finalize() error {
	if !rec.running {
		return fmt.Errorf("recorder: Finalize called while not running")
	}
	rec.running = false

	rec.indexW.Close()

	indexR, indexLen, ok := rec.store.OpenRead(rec.indexName)
	if !ok {
		rec.w.Close()
		return rec.fail("reopening %q for finalize failed", rec.indexName)
	}

	if err := codec.CopyAll(rec.w, indexR, indexLen); err != nil {
		indexR.Close()
		rec.w.Close()
		return rec.fail("splicing index onto recording failed: %v", err)
	}
	indexR.Close()
	rec.store.Delete(rec.indexName)

	if !codec.WritePaddedInt(rec.w, indexLen, codec.PaddedWidth) {
		rec.w.Close()
		return rec.fail("index length footer write failed")
	}
	if !codec.WriteString(rec.w, frame.Magic) {
		rec.w.Close()
		return rec.fail("magic footer write failed")
	}
	rec.w.Close()
	return nil
}

// Abort releases the recorder's handles without finalizing, for use when
// the host is shutting down mid-recording in a way that isn't a clean
// Finalize (the blob is left as a valid input for crash recovery).
func (rec *Recorder) Abort() {
	if !rec.running {
		return
	}
	rec.running = false
	rec.w.Close()
	rec.indexW.Close()
}

// Running reports whether Start has succeeded and Finalize/Abort has not
// yet been called.
func (rec *Recorder) Running() bool {
	return rec.running
}

func (rec *Recorder) fail(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if rec.logger != nil {
		rec.logger.LogRecorder(debug.LogLevelError, msg, map[string]interface{}{"recording": rec.recordingName})
	}
	return fmt.Errorf("recorder: %s", msg)
}
