// Package recovery splices an orphaned recording left behind by an
// abnormal termination into a valid playback blob, using the same
// finalize-tail sequence the recorder uses for a clean finish.
package recovery

import (
	"fmt"

	"rewind-core-dx/internal/blobstore"
	"rewind-core-dx/internal/codec"
	"rewind-core-dx/internal/debug"
	"rewind-core-dx/internal/frame"
	"rewind-core-dx/internal/settings"
)

// RecordingName and IndexName are the fixed blob names the recorder writes
// to during a run; recovery looks for exactly these.
const (
	RecordingName = "recording.bin"
	IndexName     = "recordingIndex.bin"
)

// RecoveryBlobPrefix names the splice target; the run's counter value is
// appended, e.g. "crashRecording_0.bin".
const RecoveryBlobPrefix = "crashRecording_"

// Pending reports whether an orphaned index blob exists, meaning the
// previous run did not finalize its recording.
func Pending(store blobstore.Store) bool {
	return store.Exists(IndexName)
}

// Recover splices recording.bin and recordingIndex.bin into a new
// crashRecording_<N>.bin using the counter persisted in nextRecoveryNumber,
// deletes recordingIndex.bin, and returns the new blob's name. It is a
// no-op returning ("", nil) if no recovery is pending.
func Recover(store blobstore.Store, logger *debug.Logger) (string, error) {
	if !Pending(store) {
		return "", nil
	}

	counter := settings.NewIntSetting(store, "nextRecoveryNumber", 0)
	n := counter.Increment()
	recoveryName := fmt.Sprintf("%s%d.bin", RecoveryBlobPrefix, n)

	recordingR, recordingLen, ok := store.OpenRead(RecordingName)
	if !ok {
		return "", fail(logger, "could not open recording.bin for recovery")
	}
	defer recordingR.Close()

	indexR, indexLen, ok := store.OpenRead(IndexName)
	if !ok {
		return "", fail(logger, "could not open recordingIndex.bin for recovery")
	}
	defer indexR.Close()

	w, ok := store.OpenWrite(recoveryName)
	if !ok {
		return "", fail(logger, "could not open "+recoveryName+" for write")
	}
	defer w.Close()

	if err := codec.CopyAll(w, recordingR, recordingLen); err != nil {
		return "", fail(logger, "copying recording.bin into "+recoveryName+" failed: "+err.Error())
	}
	if err := codec.CopyAll(w, indexR, indexLen); err != nil {
		return "", fail(logger, "copying recordingIndex.bin into "+recoveryName+" failed: "+err.Error())
	}

	if !codec.WritePaddedInt(w, indexLen, codec.PaddedWidth) {
		return "", fail(logger, "index length footer write failed during recovery")
	}
	if !codec.WriteString(w, frame.Magic) {
		return "", fail(logger, "magic footer write failed during recovery")
	}

	store.Delete(IndexName)

	if logger != nil {
		logger.LogRecovery(debug.LogLevelInfo, "spliced orphaned recording into "+recoveryName, map[string]interface{}{"recoveryNumber": n})
	}
	return recoveryName, nil
}

func fail(logger *debug.Logger, msg string) error {
	if logger != nil {
		logger.LogRecovery(debug.LogLevelError, msg, nil)
	}
	return fmt.Errorf("recovery: %s", msg)
}
