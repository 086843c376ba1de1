// Package saverestore implements the save/restore codec that forms the
// header of every recording: a fingerprint plus per-region metadata
// followed by the concatenated raw region bytes. Restore verifies every
// byte of the header against the live region set before a single byte of
// live memory is touched.
package saverestore

import (
	"fmt"

	"rewind-core-dx/internal/blobstore"
	"rewind-core-dx/internal/codec"
	"rewind-core-dx/internal/debug"
	"rewind-core-dx/internal/region"
)

// Save writes a SaveBlob for set to name: TOTAL_BYTES, COUNT,
// FINGERPRINT_HEX, then (description, length) for every region, then every
// region's raw bytes in registration order. Any write failure aborts the
// save; the blob store may retain a partial blob, but the next Restore
// attempt against it will be rejected by the header checks.
func Save(store blobstore.Store, name string, set *region.Set, logger *debug.Logger) error {
	w, ok := store.OpenWrite(name)
	if !ok {
		return fmt.Errorf("saverestore: open %q for write failed", name)
	}
	defer w.Close()

	return WriteHeader(w, name, set, logger)
}

// WriteHeader writes a SaveBlob onto an already-open writer. It exists so
// the recorder can write the SaveBlob as the first bytes of a recording
// blob using the same writer handle it keeps open for the rest of the
// stream, instead of opening and closing a second handle to the same name.
func WriteHeader(w blobstore.Writer, name string, set *region.Set, logger *debug.Logger) error {
	fp, err := set.Fingerprint()
	if err != nil {
		return fmt.Errorf("saverestore: fingerprint: %w", err)
	}

	if !codec.WriteUnpaddedInt(w, set.TotalBytes()) ||
		!codec.WriteUnpaddedInt(w, int64(set.Count())) ||
		!codec.WriteString(w, fp) {
		return fail(logger, name, "header write failed")
	}

	for _, md := range set.MetadataList() {
		if !codec.WriteString(w, md.Description) || !codec.WriteUnpaddedInt(w, md.Length) {
			return fail(logger, name, "region metadata write failed")
		}
	}

	for _, r := range set.Regions() {
		if !codec.WriteBytes(w, r.Mem) {
			return fail(logger, name, "region bytes write failed")
		}
	}

	return nil
}

func fail(logger *debug.Logger, name, msg string) error {
	if logger != nil {
		logger.LogSaveRestore(debug.LogLevelError, msg, map[string]interface{}{"blob": name})
	}
	return fmt.Errorf("saverestore: %s (%s)", msg, name)
}

// Restore reads name and overwrites the live region set's memory in place.
// It reads and compares TOTAL_BYTES, COUNT, and the fingerprint first; any
// disagreement with the live set returns an error without touching live
// memory. It then reads and compares the stored (description, length) pair
// for every region against the live tuple, aborting before any bulk read if
// a single one mismatches. Only once every piece of metadata has verified
// does it overwrite region bytes, in order.
func Restore(store blobstore.Store, name string, set *region.Set, logger *debug.Logger) error {
	r, _, ok := store.OpenRead(name)
	if !ok {
		return fmt.Errorf("saverestore: open %q for read failed", name)
	}
	defer r.Close()

	liveFP, err := set.Fingerprint()
	if err != nil {
		return fmt.Errorf("saverestore: fingerprint: %w", err)
	}

	totalBytes, ok := codec.ReadUnpaddedInt(r)
	if !ok {
		return refuse(logger, name, "could not read TOTAL_BYTES")
	}
	count, ok := codec.ReadUnpaddedInt(r)
	if !ok {
		return refuse(logger, name, "could not read COUNT")
	}
	fingerprintHex, ok := codec.ReadString(r)
	if !ok {
		return refuse(logger, name, "could not read FINGERPRINT_HEX")
	}

	if totalBytes != set.TotalBytes() {
		return refuse(logger, name, fmt.Sprintf("TOTAL_BYTES mismatch: stored %d, live %d", totalBytes, set.TotalBytes()))
	}
	if count != int64(set.Count()) {
		return refuse(logger, name, fmt.Sprintf("COUNT mismatch: stored %d, live %d", count, set.Count()))
	}
	if fingerprintHex != liveFP {
		return refuse(logger, name, fmt.Sprintf("fingerprint mismatch: stored %s, live %s", fingerprintHex, liveFP))
	}

	live := set.Regions()
	storedLengths := make([]int64, count)
	for i := int64(0); i < count; i++ {
		desc, ok := codec.ReadString(r)
		if !ok {
			return refuse(logger, name, "could not read region description")
		}
		length, ok := codec.ReadUnpaddedInt(r)
		if !ok {
			return refuse(logger, name, "could not read region length")
		}
		if desc != live[i].Description {
			return refuse(logger, name, fmt.Sprintf("region %d description mismatch: stored %q, live %q", i, desc, live[i].Description))
		}
		if length != int64(len(live[i].Mem)) {
			return refuse(logger, name, fmt.Sprintf("region %d length mismatch: stored %d, live %d", i, length, len(live[i].Mem)))
		}
		storedLengths[i] = length
	}

	// Every piece of header metadata has now verified; only now do we
	// overwrite live memory.
	for i, length := range storedLengths {
		n := r.Read(live[i].Mem[:length])
		if int64(n) != length {
			return refuse(logger, name, fmt.Sprintf("region %d bytes truncated", i))
		}
	}

	return nil
}

func refuse(logger *debug.Logger, name, reason string) error {
	if logger != nil {
		logger.LogSaveRestore(debug.LogLevelError, "restore refused: "+reason, map[string]interface{}{"blob": name})
	}
	return fmt.Errorf("saverestore: restore refused (%s): %s", name, reason)
}
