// Package engine wires the region registry, save/restore, recorder,
// playback, and recovery packages into the single Core value a host
// constructs once and drives with one Step call per tick. It owns the
// IDLE -> RECORDING <-> PLAYBACK state machine described by the format
// this module implements.
package engine

import (
	"fmt"

	"rewind-core-dx/internal/blobstore"
	"rewind-core-dx/internal/debug"
	"rewind-core-dx/internal/playback"
	"rewind-core-dx/internal/recorder"
	"rewind-core-dx/internal/recovery"
	"rewind-core-dx/internal/region"
	"rewind-core-dx/internal/saverestore"
)

// State names the three-state recorder/playback machine.
type State int

const (
	StateIdle State = iota
	StateRecording
	StatePlayback
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StatePlayback:
		return "playback"
	default:
		return "unknown"
	}
}

const (
	saveBlobName     = "save.bin"
	recordingName    = recovery.RecordingName
	indexName        = recovery.IndexName
	playbackBlobName = "playback.bin"
)

// Core is the single value a host constructs once and holds for the
// program's lifetime. It is not safe for concurrent use; step execution is
// assumed serial, per the single-threaded cooperative scheduling model.
type Core struct {
	store  blobstore.Store
	set    *region.Set
	logger *debug.Logger
	period int64

	state       State
	interrupted bool

	rec *recorder.Recorder
	cur *playback.Cursor
}

// Option configures a Core at construction.
type Option func(*Core)

// WithSnapshotPeriod overrides the recorder's default K (diffs between
// FullFrames).
func WithSnapshotPeriod(period int64) Option {
	return func(c *Core) { c.period = period }
}

// WithLogger attaches a logger; nil is a valid logger (all logging calls
// no-op).
func WithLogger(logger *debug.Logger) Option {
	return func(c *Core) { c.logger = logger }
}

// New constructs a Core over an already-frozen region set and a blob
// store, starting IDLE. Call RunStartupRecovery, then RestoreSave (if a save
// exists) or nothing, then StartRecording to begin the normal lifecycle.
func New(store blobstore.Store, set *region.Set, opts ...Option) *Core {
	c := &Core{
		store:  store,
		set:    set,
		period: recorder.DefaultSnapshotPeriod,
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State reports the current state-machine state.
func (c *Core) State() State { return c.state }

// RunStartupRecovery splices any orphaned recording left by an unclean
// shutdown into a crash-recovery blob. Call once, before entering
// RECORDING. Returns the new blob's name, or "" if nothing was pending.
func (c *Core) RunStartupRecovery() (string, error) {
	return recovery.Recover(c.store, c.logger)
}

// RestoreSave restores live memory from the conventional save.bin blob, if
// present.
func (c *Core) RestoreSave() error {
	if !c.store.Exists(saveBlobName) {
		return nil
	}
	return saverestore.Restore(c.store, saveBlobName, c.set, c.logger)
}

// SaveNow writes live memory to the conventional save.bin blob.
func (c *Core) SaveNow() error {
	return saverestore.Save(c.store, saveBlobName, c.set, c.logger)
}

// StartRecording transitions IDLE -> RECORDING.
func (c *Core) StartRecording() error {
	if c.state != StateIdle {
		return fmt.Errorf("engine: StartRecording called from state %s", c.state)
	}
	rec := recorder.New(c.store, c.set, c.logger, recordingName, indexName, c.period)
	if err := rec.Start(); err != nil {
		return err
	}
	c.rec = rec
	c.state = StateRecording
	return nil
}

// EnterPlayback transitions RECORDING -> PLAYBACK: finalizes the in-flight
// recording, remembers that playback was entered by interruption (so
// natural end-of-stream resumes RECORDING), and opens the finalized blob.
func (c *Core) EnterPlayback() error {
	if c.state != StateRecording {
		return fmt.Errorf("engine: EnterPlayback called from state %s", c.state)
	}
	if err := c.rec.Finalize(); err != nil {
		c.rec = nil
		c.state = StateIdle
		return err
	}
	c.rec = nil

	cur, err := playback.Open(c.store, recordingName, c.set, c.logger)
	if err != nil {
		c.state = StateIdle
		return err
	}
	c.cur = cur
	c.interrupted = true
	c.state = StatePlayback
	return nil
}

// StopPlayback transitions PLAYBACK -> RECORDING (if interrupted) or IDLE,
// on user command or natural end of stream.
func (c *Core) StopPlayback() error {
	if c.state != StatePlayback {
		return fmt.Errorf("engine: StopPlayback called from state %s", c.state)
	}
	c.cur.Close()
	c.cur = nil
	c.state = StateIdle
	if c.interrupted {
		c.interrupted = false
		return c.StartRecording()
	}
	return nil
}

// Cursor exposes the active playback cursor for the host to drive
// controls (pause, speed, jump) through; nil outside PLAYBACK.
func (c *Core) Cursor() *playback.Cursor { return c.cur }

// Step is the host's per-tick entry point. simulate is invoked exactly
// once per tick while RECORDING (and never while PLAYBACK is consuming
// the tick). final requests shutdown: live state is saved and any
// in-flight recording is finalized before Step returns.
func (c *Core) Step(final bool, simulate func()) error {
	switch c.state {
	case StateRecording:
		if simulate != nil {
			simulate()
		}
		if err := c.rec.Step(); err != nil {
			c.logError("recording step failed; returning to idle", err)
			c.rec.Abort()
			c.rec = nil
			c.state = StateIdle
		}
	case StatePlayback:
		if err := c.cur.Tick(); err != nil {
			c.logError("playback tick failed", err)
		}
		if !c.cur.Running() {
			if err := c.StopPlayback(); err != nil {
				return err
			}
		}
	}

	if final {
		return c.shutdown()
	}
	return nil
}

func (c *Core) shutdown() error {
	if err := c.SaveNow(); err != nil {
		c.logError("final save failed", err)
	}
	switch c.state {
	case StateRecording:
		err := c.rec.Finalize()
		c.rec = nil
		c.state = StateIdle
		return err
	case StatePlayback:
		c.cur.Close()
		c.cur = nil
		c.state = StateIdle
	}
	return nil
}

func (c *Core) logError(msg string, err error) {
	if c.logger != nil {
		c.logger.LogSystem(debug.LogLevelError, msg+": "+err.Error(), nil)
	}
}
