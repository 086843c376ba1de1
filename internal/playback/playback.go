// Package playback implements the Playback Engine: opening a finalized
// recording, validating its footer and index, restoring the initial
// snapshot, and then driving a PlaybackCursor forward, backward, or to an
// arbitrary keyframe.
package playback

import (
	"fmt"

	"rewind-core-dx/internal/blobstore"
	"rewind-core-dx/internal/codec"
	"rewind-core-dx/internal/debug"
	"rewind-core-dx/internal/frame"
	"rewind-core-dx/internal/region"
	"rewind-core-dx/internal/saverestore"
)

// footerLength is |footer|: the magic string plus its NUL terminator.
const footerLength = int64(len(frame.Magic) + 1)

// Cursor is the PlaybackCursor: blob position, last full snapshot played,
// direction, speed, and the paused/running flags. speed = +k >= 1 means k
// forward frames per host tick; speed = -k <= -2 means one frame every |k|
// host ticks; there is no speed = 0 or -1.
type Cursor struct {
	store  blobstore.Store
	set    *region.Set
	logger *debug.Logger

	blobName string
	r        blobstore.Reader

	indexStart             int64
	numFullSnapshots       int64
	fullSnapshotLastPlayed int64

	direction int
	speed     int
	paused    bool
	running   bool

	subTick int
}

// Open parses and verifies a finalized recording blob: the SaveBlob header
// (restored into set's live memory), the magic footer, and the index, then
// restores the first FullFrame. Any verification failure refuses to touch
// live memory and returns an error, matching the restore-before-mutate
// discipline of saverestore.Restore.
func Open(store blobstore.Store, blobName string, set *region.Set, logger *debug.Logger) (*Cursor, error) {
	if set.Count() == 0 {
		return nil, refuse(logger, blobName, "no memory records")
	}

	if err := saverestore.Restore(store, blobName, set, logger); err != nil {
		return nil, err
	}

	r, length, ok := store.OpenRead(blobName)
	if !ok {
		return nil, refuse(logger, blobName, "could not reopen for frame navigation")
	}

	if length < footerLength+codec.PaddedWidth {
		r.Close()
		return nil, refuse(logger, blobName, "blob too short for footer")
	}

	if !r.Seek(length - footerLength) {
		r.Close()
		return nil, refuse(logger, blobName, "could not seek to magic footer")
	}
	magic, ok := codec.ReadString(r)
	if !ok || magic != frame.Magic {
		r.Close()
		return nil, refuse(logger, blobName, "missing or corrupt magic footer")
	}

	if !r.Seek(length - footerLength - codec.PaddedWidth) {
		r.Close()
		return nil, refuse(logger, blobName, "could not seek to index length field")
	}
	indexLength, ok := codec.ReadPaddedInt(r, codec.PaddedWidth)
	if !ok || indexLength < 0 || indexLength%codec.PaddedWidth != 0 {
		r.Close()
		return nil, refuse(logger, blobName, "truncated or malformed index length")
	}

	indexStart := length - footerLength - codec.PaddedWidth - indexLength
	if indexStart < 0 {
		r.Close()
		return nil, refuse(logger, blobName, "index does not fit within blob")
	}

	if !r.Seek(indexStart) {
		r.Close()
		return nil, refuse(logger, blobName, "could not seek to index start")
	}
	firstStartPos, ok := codec.ReadPaddedInt(r, codec.PaddedWidth)
	if !ok {
		r.Close()
		return nil, refuse(logger, blobName, "could not read first index entry")
	}

	if !r.Seek(firstStartPos) {
		r.Close()
		return nil, refuse(logger, blobName, "could not seek to initial snapshot")
	}
	typ, ok := frame.ReadType(r)
	if !ok || typ != frame.TypeFull {
		r.Close()
		return nil, refuse(logger, blobName, "initial frame is not a FullFrame")
	}

	if err := saverestore.Restore(store, blobName, set, logger); err != nil {
		r.Close()
		return nil, err
	}
	if _, ok := frame.ApplyFull(r, set); !ok {
		r.Close()
		return nil, refuse(logger, blobName, "could not apply initial FullFrame")
	}

	return &Cursor{
		store:                  store,
		set:                    set,
		logger:                 logger,
		blobName:               blobName,
		r:                      r,
		indexStart:             indexStart,
		numFullSnapshots:       indexLength / codec.PaddedWidth,
		fullSnapshotLastPlayed: 0,
		direction:              1,
		speed:                  1,
		paused:                 false,
		running:                true,
	}, nil
}

// Close releases the cursor's read handle. Safe to call once playback has
// ended or on any abandonment of the cursor.
func (c *Cursor) Close() {
	if c.r != nil {
		c.r.Close()
		c.r = nil
	}
}

// Running reports whether playback has not yet reached end-of-stream or an
// unrecoverable error.
func (c *Cursor) Running() bool { return c.running }

// Paused reports the current pause state.
func (c *Cursor) Paused() bool { return c.paused }

// Direction reports the current playback direction, +1 or -1.
func (c *Cursor) Direction() int { return c.direction }

// Speed reports the current speed value.
func (c *Cursor) Speed() int { return c.speed }

// FullSnapshotLastPlayed reports the index of the most recently applied
// FullFrame.
func (c *Cursor) FullSnapshotLastPlayed() int64 { return c.fullSnapshotLastPlayed }

// ForwardStep attempts to restore the DiffFrame at the cursor. If the frame
// there is instead a FullFrame (periodic snapshot boundary), it applies the
// FullFrame (a state no-op, but it advances the cursor and the snapshot
// counter) and then the DiffFrame that immediately follows it, if any. In a
// cap-degraded stream every step is its own standalone FullFrame with no
// diff ever interleaved; there the applied FullFrame is itself the
// recorded step. If there are no more frames and the last snapshot has
// already been played, playback ends.
func (c *Cursor) ForwardStep() error {
	if !c.running {
		return fmt.Errorf("playback: ForwardStep called while not running")
	}

	currentPos := c.r.Tell()
	typ, ok := frame.ReadType(c.r)
	if ok && typ == frame.TypeDiff {
		if _, ok := frame.ApplyDiff(c.r, c.set); !ok {
			c.end("corrupt DiffFrame during forward playback")
			return fmt.Errorf("playback: corrupt DiffFrame")
		}
		return nil
	}

	if c.fullSnapshotLastPlayed == c.numFullSnapshots-1 {
		c.end("reached end of stream")
		return nil
	}

	if !c.r.Seek(currentPos) {
		c.end("could not seek back to retry as FullFrame")
		return fmt.Errorf("playback: seek failure")
	}
	typ, ok = frame.ReadType(c.r)
	if !ok || typ != frame.TypeFull {
		c.end("frame at position is neither DiffFrame nor FullFrame")
		return fmt.Errorf("playback: unreadable frame")
	}
	if _, ok := frame.ApplyFull(c.r, c.set); !ok {
		c.end("corrupt FullFrame during forward playback")
		return fmt.Errorf("playback: corrupt FullFrame")
	}
	c.fullSnapshotLastPlayed++

	afterFull := c.r.Tell()
	typ, ok = frame.ReadType(c.r)
	if ok && typ == frame.TypeDiff {
		if _, ok := frame.ApplyDiff(c.r, c.set); !ok {
			c.end("corrupt DiffFrame following snapshot boundary")
			return fmt.Errorf("playback: corrupt DiffFrame")
		}
		return nil
	}

	// No DiffFrame follows: either a cap-degraded stream (every step is
	// its own FullFrame, with no diff ever interleaved) or the FullFrame
	// just applied is the last frame in the stream. Either way the
	// FullFrame already applied is itself the recorded step; rewind past
	// the peek so the next call reads cleanly from here.
	if !c.r.Seek(afterFull) {
		c.end("could not seek back after snapshot-boundary FullFrame")
		return fmt.Errorf("playback: seek failure")
	}
	return nil
}

// BackwardStep undoes the frame just before the cursor. The cursor sits
// just past the end of the last-applied frame; it reads that frame's
// own recorded startPos from the 12-byte footer immediately preceding the
// cursor, seeks there, and un-applies it. DiffFrames are self-inverse
// (XOR). A FullFrame found there instead means a snapshot boundary: the
// frame immediately preceding it on disk is inspected to tell apart the
// two ways that can happen. In a normal stream it is the DiffFrame
// duplicated by this FullFrame, in which case the FullFrame is applied as
// a no-op and that DiffFrame is undone, so the net effect is exactly one
// state transition backward. In a cap-degraded stream (every step is its
// own standalone FullFrame, no diff ever interleaved) it is instead
// another FullFrame, which already holds the previous step's recorded
// state and is applied directly.
func (c *Cursor) BackwardStep() error {
	if !c.running {
		return fmt.Errorf("playback: BackwardStep called while not running")
	}

	pos := c.r.Tell() - codec.PaddedWidth
	if !c.r.Seek(pos) {
		c.end("could not seek to preceding frame footer")
		return fmt.Errorf("playback: seek failure")
	}
	startPos, ok := codec.ReadPaddedInt(c.r, codec.PaddedWidth)
	if !ok {
		c.end("could not read frame footer")
		return fmt.Errorf("playback: corrupt footer")
	}

	if !c.r.Seek(startPos) {
		c.end("could not seek to frame start")
		return fmt.Errorf("playback: seek failure")
	}
	typ, ok := frame.ReadType(c.r)
	if ok && typ == frame.TypeDiff {
		if _, ok := frame.ApplyDiff(c.r, c.set); !ok {
			c.end("corrupt DiffFrame during backward playback")
			return fmt.Errorf("playback: corrupt DiffFrame")
		}
		c.r.Seek(startPos)
		return nil
	}

	if c.fullSnapshotLastPlayed == 0 {
		c.end("reached first snapshot")
		return nil
	}

	if !c.r.Seek(startPos - codec.PaddedWidth) {
		c.end("could not seek to preceding frame's footer")
		return fmt.Errorf("playback: seek failure")
	}
	prevStartPos, ok := codec.ReadPaddedInt(c.r, codec.PaddedWidth)
	if !ok {
		c.end("could not read preceding frame footer")
		return fmt.Errorf("playback: corrupt footer")
	}
	if !c.r.Seek(prevStartPos) {
		c.end("could not seek to preceding frame start")
		return fmt.Errorf("playback: seek failure")
	}
	prevTyp, ok := frame.ReadType(c.r)
	if !ok {
		c.end("could not read preceding frame type")
		return fmt.Errorf("playback: unreadable frame")
	}

	if prevTyp == frame.TypeDiff {
		if !c.r.Seek(startPos) {
			c.end("could not re-seek to frame start")
			return fmt.Errorf("playback: seek failure")
		}
		if _, ok := frame.ReadType(c.r); !ok {
			c.end("frame at position is neither DiffFrame nor FullFrame")
			return fmt.Errorf("playback: unreadable frame")
		}
		if _, ok := frame.ApplyFull(c.r, c.set); !ok {
			c.end("corrupt FullFrame during backward playback")
			return fmt.Errorf("playback: corrupt FullFrame")
		}
		c.fullSnapshotLastPlayed--

		if !c.r.Seek(prevStartPos) {
			c.end("could not seek to preceding DiffFrame")
			return fmt.Errorf("playback: seek failure")
		}
		if _, ok := frame.ReadType(c.r); !ok {
			c.end("could not read preceding DiffFrame type")
			return fmt.Errorf("playback: unreadable frame")
		}
		if _, ok := frame.ApplyDiff(c.r, c.set); !ok {
			c.end("corrupt DiffFrame preceding snapshot boundary")
			return fmt.Errorf("playback: corrupt DiffFrame")
		}
		c.r.Seek(prevStartPos)
		return nil
	}

	if prevTyp != frame.TypeFull {
		c.end("frame preceding snapshot boundary FullFrame is neither DiffFrame nor FullFrame")
		return fmt.Errorf("playback: unreadable frame")
	}

	// Cap-degraded stream: two consecutive FullFrames with no diff between
	// them. The preceding FullFrame already holds the previous step's
	// recorded state, so apply it directly instead of re-applying the
	// frame being undone.
	if _, ok := frame.ApplyFull(c.r, c.set); !ok {
		c.end("corrupt FullFrame during backward playback")
		return fmt.Errorf("playback: corrupt FullFrame")
	}
	c.fullSnapshotLastPlayed--
	c.r.Seek(startPos)
	return nil
}

func (c *Cursor) step() error {
	if c.direction >= 0 {
		return c.ForwardStep()
	}
	return c.BackwardStep()
}

// Tick runs one host tick's worth of playback work: nothing if paused,
// |speed| >= 1 steps if speed >= 1, or one step every |speed| ticks if
// speed <= -2 (slow motion).
func (c *Cursor) Tick() error {
	if c.paused || !c.running {
		return nil
	}
	if c.speed >= 1 {
		for i := 0; i < c.speed && c.running; i++ {
			if err := c.step(); err != nil {
				return err
			}
		}
		return nil
	}

	c.subTick++
	if c.subTick >= -c.speed {
		c.subTick = 0
		return c.step()
	}
	return nil
}

// TogglePause flips the paused flag.
func (c *Cursor) TogglePause() {
	c.paused = !c.paused
}

// Normal resets to speed=+1, direction=+1, unpaused.
func (c *Cursor) Normal() {
	c.speed = 1
	c.direction = 1
	c.paused = false
}

// Reverse flips the playback direction.
func (c *Cursor) Reverse() {
	c.direction = -c.direction
}

// Faster steps once immediately if paused; otherwise increments speed when
// it is already >= 1, leaves slow-motion (-2 -> +1), or halves the
// magnitude of a slow-motion speed <= -4.
func (c *Cursor) Faster() error {
	if c.paused {
		return c.step()
	}
	switch {
	case c.speed >= 1:
		c.speed++
	case c.speed == -2:
		c.speed = 1
	case c.speed <= -4:
		c.speed /= 2
	}
	return nil
}

// Slower decrements speed while it is above 1, transitions +1 into
// slow-motion at -2, or doubles the magnitude of an existing slow-motion
// speed.
func (c *Cursor) Slower() {
	switch {
	case c.speed > 1:
		c.speed--
	case c.speed == 1:
		c.speed = -2
	default:
		c.speed *= 2
	}
}

// JumpToFullSnapshot seeks to the k-th index entry and forces application
// of the FullFrame it points to, regardless of current direction.
func (c *Cursor) JumpToFullSnapshot(k int64) error {
	if !c.running {
		return fmt.Errorf("playback: JumpToFullSnapshot called while not running")
	}
	if k < 0 || k >= c.numFullSnapshots {
		return fmt.Errorf("playback: snapshot index %d out of range [0,%d)", k, c.numFullSnapshots)
	}

	if !c.r.Seek(c.indexStart + k*codec.PaddedWidth) {
		return fmt.Errorf("playback: could not seek to index entry %d", k)
	}
	startPos, ok := codec.ReadPaddedInt(c.r, codec.PaddedWidth)
	if !ok {
		return fmt.Errorf("playback: could not read index entry %d", k)
	}
	if !c.r.Seek(startPos) {
		return fmt.Errorf("playback: could not seek to snapshot %d", k)
	}
	typ, ok := frame.ReadType(c.r)
	if !ok || typ != frame.TypeFull {
		return fmt.Errorf("playback: index entry %d does not point to a FullFrame", k)
	}
	if _, ok := frame.ApplyFull(c.r, c.set); !ok {
		return fmt.Errorf("playback: could not apply snapshot %d", k)
	}
	c.fullSnapshotLastPlayed = k
	return nil
}

// JumpHalfAhead jumps to the snapshot half-way between the last one played
// and the end of the stream.
func (c *Cursor) JumpHalfAhead() error {
	target := c.fullSnapshotLastPlayed + (c.numFullSnapshots-c.fullSnapshotLastPlayed)/2
	return c.JumpToFullSnapshot(target)
}

// JumpHalfBack jumps to the snapshot half-way between the start of the
// stream and the last one played.
func (c *Cursor) JumpHalfBack() error {
	return c.JumpToFullSnapshot(c.fullSnapshotLastPlayed / 2)
}

func (c *Cursor) end(reason string) {
	c.running = false
	if c.logger != nil {
		c.logger.LogPlayback(debug.LogLevelInfo, "playback ended: "+reason, map[string]interface{}{"blob": c.blobName})
	}
}

func refuse(logger *debug.Logger, name, reason string) error {
	if logger != nil {
		logger.LogPlayback(debug.LogLevelError, "playback open refused: "+reason, map[string]interface{}{"blob": name})
	}
	return fmt.Errorf("playback: open refused (%s): %s", name, reason)
}
