package recorder

import (
	"testing"

	"rewind-core-dx/internal/blobstore"
	"rewind-core-dx/internal/codec"
	"rewind-core-dx/internal/region"
)

func buildSet(capacity int64) (*region.Set, map[string][]byte) {
	b := region.NewBuilder(capacity, nil)
	mems := map[string][]byte{
		"pos": make([]byte, 4),
		"hp":  make([]byte, 2),
	}
	b.Register(mems["pos"], "pos")
	b.Register(mems["hp"], "hp")
	return b.Freeze(), mems
}

func readIndexEntries(t *testing.T, store blobstore.Store, name string) []int64 {
	t.Helper()
	r, length, ok := store.OpenRead(name)
	if !ok {
		t.Fatalf("could not open %q", name)
	}
	defer r.Close()
	n := length / codec.PaddedWidth
	out := make([]int64, 0, n)
	for i := int64(0); i < n; i++ {
		v, ok := codec.ReadPaddedInt(r, codec.PaddedWidth)
		if !ok {
			t.Fatalf("short index at entry %d", i)
		}
		out = append(out, v)
	}
	return out
}

func TestStartStepFinalizeProducesWellFormedBlob(t *testing.T) {
	store := blobstore.NewMemStore()
	set, mems := buildSet(region.DefaultCapacity)
	copy(mems["pos"], []byte{1, 2, 3, 4})

	rec := New(store, set, nil, "recording.bin", "recordingIndex.bin", DefaultSnapshotPeriod)
	if err := rec.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	mems["pos"][0] = 9
	if err := rec.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}

	if err := rec.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if store.Exists("recordingIndex.bin") {
		t.Fatal("index blob should be deleted after Finalize")
	}

	r, _, ok := store.OpenRead("recording.bin")
	if !ok {
		t.Fatal("recording.bin missing after Finalize")
	}
	defer r.Close()

	if _, ok := codec.ReadUnpaddedInt(r); !ok {
		t.Fatal("could not read TOTAL_BYTES header")
	}
}

func TestSnapshotPeriodBoundaries(t *testing.T) {
	// K=3 over 10 steps: FullFrames at the initial capture (step 0) and
	// after every 3rd diff (steps 3, 6, 9), for 4 index entries total.
	store := blobstore.NewMemStore()
	set, mems := buildSet(region.DefaultCapacity)

	rec := New(store, set, nil, "recording.bin", "recordingIndex.bin", 3)
	if err := rec.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 10; i++ {
		mems["pos"][0] = byte(i)
		if err := rec.Step(); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
	}

	indexEntries := readIndexEntries(t, store, "recordingIndex.bin")
	if len(indexEntries) != 4 {
		t.Fatalf("index entries = %d, want 4", len(indexEntries))
	}

	if err := rec.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
}

func TestDiffCapDegradationEmitsFullFrameEveryStep(t *testing.T) {
	store := blobstore.NewMemStore()
	set, mems := buildSet(1) // capacity of 1 byte, well below Σ N = 6

	if !set.OverCapacity() {
		t.Fatal("expected set to be over capacity")
	}

	rec := New(store, set, nil, "recording.bin", "recordingIndex.bin", DefaultSnapshotPeriod)
	if err := rec.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !rec.diffsDisabled {
		t.Fatal("expected diffsDisabled when region set is over capacity")
	}

	for i := 0; i < 5; i++ {
		mems["hp"][0] = byte(i)
		if err := rec.Step(); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
	}

	indexEntries := readIndexEntries(t, store, "recordingIndex.bin")
	// One entry from Start's initial FullFrame plus one per Step call,
	// since diffsDisabled forces a FullFrame (and index entry) every step.
	if len(indexEntries) != 6 {
		t.Fatalf("index entries = %d, want 6", len(indexEntries))
	}

	if err := rec.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
}

func TestStepBeforeStartFails(t *testing.T) {
	store := blobstore.NewMemStore()
	set, _ := buildSet(region.DefaultCapacity)
	rec := New(store, set, nil, "recording.bin", "recordingIndex.bin", DefaultSnapshotPeriod)
	if err := rec.Step(); err == nil {
		t.Fatal("expected error stepping before Start")
	}
}

func TestAbortReleasesHandlesWithoutFinalizing(t *testing.T) {
	store := blobstore.NewMemStore()
	set, _ := buildSet(region.DefaultCapacity)
	rec := New(store, set, nil, "recording.bin", "recordingIndex.bin", DefaultSnapshotPeriod)
	if err := rec.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rec.Abort()
	if rec.Running() {
		t.Fatal("expected Running() false after Abort")
	}
	// recording.bin exists but has no magic footer: not a valid playback
	// blob, but readable as the raw material for crash recovery.
	if !store.Exists("recording.bin") {
		t.Fatal("expected recording.bin to remain after Abort")
	}
}
