// Package settings persists small pieces of core state — currently just
// the crash-recovery counter — through the same blob store used for
// recordings, as a single NUL-terminated decimal integer rather than a
// JSON document. This mirrors the load-with-default, save-on-change shape
// of a typical dev-tool settings persistence layer, adapted to the core's
// blob store instead of a config-directory JSON file.
package settings

import (
	"rewind-core-dx/internal/blobstore"
	"rewind-core-dx/internal/codec"
)

// IntSetting is a single named integer, backed by one blob.
type IntSetting struct {
	store        blobstore.Store
	name         string
	defaultValue int64
}

// NewIntSetting binds name to a settings value in store, used if the blob
// does not yet exist.
func NewIntSetting(store blobstore.Store, name string, defaultValue int64) *IntSetting {
	return &IntSetting{store: store, name: name, defaultValue: defaultValue}
}

// Load reads the current value, returning the configured default if the
// blob does not exist or is unreadable.
func (s *IntSetting) Load() int64 {
	r, _, ok := s.store.OpenRead(s.name)
	if !ok {
		return s.defaultValue
	}
	defer r.Close()

	v, ok := codec.ReadUnpaddedInt(r)
	if !ok {
		return s.defaultValue
	}
	return v
}

// Save overwrites the setting with v.
func (s *IntSetting) Save(v int64) bool {
	w, ok := s.store.OpenWrite(s.name)
	if !ok {
		return false
	}
	defer w.Close()
	return codec.WriteUnpaddedInt(w, v)
}

// Increment loads the current value, saves value+1, and returns the
// pre-increment value (the one the caller should use this run).
func (s *IntSetting) Increment() int64 {
	v := s.Load()
	s.Save(v + 1)
	return v
}
