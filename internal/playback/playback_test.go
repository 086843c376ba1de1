package playback

import (
	"bytes"
	"testing"

	"rewind-core-dx/internal/blobstore"
	"rewind-core-dx/internal/recorder"
	"rewind-core-dx/internal/region"
)

func recordFourByteRun(t *testing.T, period int64) (blobstore.Store, []byte) {
	t.Helper()
	return recordFourByteRunWithCapacity(t, period, region.DefaultCapacity)
}

func recordFourByteRunWithCapacity(t *testing.T, period, capacity int64) (blobstore.Store, []byte) {
	t.Helper()
	store := blobstore.NewMemStore()
	b := region.NewBuilder(capacity, nil)
	mem := make([]byte, 4)
	b.Register(mem, "state")
	set := b.Freeze()

	rec := recorder.New(store, set, nil, "playback.bin", "playbackIndex.bin", period)
	if err := rec.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	mem[0] = 1
	if err := rec.Step(); err != nil {
		t.Fatalf("Step 1: %v", err)
	}
	mem[1] = 2
	if err := rec.Step(); err != nil {
		t.Fatalf("Step 2: %v", err)
	}
	mem[3] = 0xFF
	if err := rec.Step(); err != nil {
		t.Fatalf("Step 3: %v", err)
	}

	if err := rec.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return store, mem
}

// Scenario B from the recording format's worked examples: a single 4-byte
// region, 3 steps (01 00 00 00 -> 01 02 00 00 -> 01 02 00 FF). Forward
// playback reconstructs each step; reverse playback reproduces them in
// the opposite order.
func TestForwardThenBackwardReproducesEachStep(t *testing.T) {
	store, _ := recordFourByteRun(t, recorder.DefaultSnapshotPeriod)

	liveBuilder := region.NewBuilder(region.DefaultCapacity, nil)
	live := make([]byte, 4)
	liveBuilder.Register(live, "state")
	liveSet := liveBuilder.Freeze()

	cur, err := Open(store, "playback.bin", liveSet, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cur.Close()

	if !bytes.Equal(live, []byte{0, 0, 0, 0}) {
		t.Fatalf("initial state = %v, want zeroed", live)
	}

	steps := [][]byte{
		{1, 0, 0, 0},
		{1, 2, 0, 0},
		{1, 2, 0, 0xFF},
	}
	for i, want := range steps {
		if err := cur.ForwardStep(); err != nil {
			t.Fatalf("ForwardStep %d: %v", i, err)
		}
		if !bytes.Equal(live, want) {
			t.Fatalf("forward step %d: state = %v, want %v", i, live, want)
		}
	}

	reverseWant := [][]byte{
		{1, 2, 0, 0},
		{1, 0, 0, 0},
		{0, 0, 0, 0},
	}
	for i, want := range reverseWant {
		if err := cur.BackwardStep(); err != nil {
			t.Fatalf("BackwardStep %d: %v", i, err)
		}
		if !bytes.Equal(live, want) {
			t.Fatalf("backward step %d: state = %v, want %v", i, live, want)
		}
	}
}

// Same scenario as TestForwardThenBackwardReproducesEachStep, but the
// region set's capacity is forced below the total registered size so the
// recorder degrades to emitting a standalone FullFrame every step, with no
// DiffFrame ever interleaved. ForwardStep and BackwardStep must still
// reproduce the recorded sequence one step at a time.
func TestForwardThenBackwardReproducesEachStepCapDegraded(t *testing.T) {
	store, _ := recordFourByteRunWithCapacity(t, recorder.DefaultSnapshotPeriod, 1)

	liveBuilder := region.NewBuilder(region.DefaultCapacity, nil)
	live := make([]byte, 4)
	liveBuilder.Register(live, "state")
	liveSet := liveBuilder.Freeze()

	cur, err := Open(store, "playback.bin", liveSet, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cur.Close()

	if !bytes.Equal(live, []byte{0, 0, 0, 0}) {
		t.Fatalf("initial state = %v, want zeroed", live)
	}

	steps := [][]byte{
		{1, 0, 0, 0},
		{1, 2, 0, 0},
		{1, 2, 0, 0xFF},
	}
	for i, want := range steps {
		if err := cur.ForwardStep(); err != nil {
			t.Fatalf("ForwardStep %d: %v", i, err)
		}
		if !bytes.Equal(live, want) {
			t.Fatalf("forward step %d: state = %v, want %v", i, live, want)
		}
	}

	reverseWant := [][]byte{
		{1, 2, 0, 0},
		{1, 0, 0, 0},
		{0, 0, 0, 0},
	}
	for i, want := range reverseWant {
		if err := cur.BackwardStep(); err != nil {
			t.Fatalf("BackwardStep %d: %v", i, err)
		}
		if !bytes.Equal(live, want) {
			t.Fatalf("backward step %d: state = %v, want %v", i, live, want)
		}
	}
}

// Scenario C: K=3 over 10 steps puts FullFrames at steps 0, 3, 6, 9 (4
// index entries); JumpHalfAhead from step 0 lands on index entry 2 (step
// 6).
func TestJumpHalfAheadLandsOnExpectedSnapshot(t *testing.T) {
	store := blobstore.NewMemStore()
	b := region.NewBuilder(region.DefaultCapacity, nil)
	mem := make([]byte, 1)
	b.Register(mem, "counter")
	set := b.Freeze()

	rec := recorder.New(store, set, nil, "playback.bin", "playbackIndex.bin", 3)
	if err := rec.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 1; i <= 10; i++ {
		mem[0] = byte(i)
		if err := rec.Step(); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
	}
	if err := rec.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	liveBuilder := region.NewBuilder(region.DefaultCapacity, nil)
	live := make([]byte, 1)
	liveBuilder.Register(live, "counter")
	liveSet := liveBuilder.Freeze()

	cur, err := Open(store, "playback.bin", liveSet, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cur.Close()

	if cur.numFullSnapshots != 4 {
		t.Fatalf("numFullSnapshots = %d, want 4", cur.numFullSnapshots)
	}

	if err := cur.JumpHalfAhead(); err != nil {
		t.Fatalf("JumpHalfAhead: %v", err)
	}
	if cur.FullSnapshotLastPlayed() != 2 {
		t.Fatalf("FullSnapshotLastPlayed = %d, want 2", cur.FullSnapshotLastPlayed())
	}
	if live[0] != 6 {
		t.Fatalf("counter = %d, want 6 (state after step 6)", live[0])
	}
}

// Scenario A: zero registered regions refuses to open.
func TestOpenRefusesEmptyRegionSet(t *testing.T) {
	store := blobstore.NewMemStore()
	b := region.NewBuilder(region.DefaultCapacity, nil)
	set := b.Freeze()

	if _, err := Open(store, "playback.bin", set, nil); err == nil {
		t.Fatal("expected Open to refuse an empty region set")
	}
}

// Scenario D: truncating the last byte of a recording fails the footer
// check and leaves live memory untouched.
func TestOpenRejectsTruncatedFooterWithoutMutating(t *testing.T) {
	store, _ := recordFourByteRun(t, recorder.DefaultSnapshotPeriod)

	r, length, ok := store.OpenRead("playback.bin")
	if !ok {
		t.Fatal("could not read playback.bin")
	}
	buf := make([]byte, length)
	r.Read(buf)
	r.Close()

	truncated := blobstore.NewMemStore()
	w, _ := truncated.OpenWrite("playback.bin")
	w.Write(buf[:len(buf)-1])
	w.Close()

	liveBuilder := region.NewBuilder(region.DefaultCapacity, nil)
	live := make([]byte, 4)
	live[0] = 0xAA
	liveBuilder.Register(live, "state")
	liveSet := liveBuilder.Freeze()

	if _, err := Open(truncated, "playback.bin", liveSet, nil); err == nil {
		t.Fatal("expected Open to reject a truncated footer")
	}
	if live[0] != 0xAA {
		t.Fatal("Open must not mutate live memory when it refuses")
	}
}

func TestFasterAndSlowerTransitions(t *testing.T) {
	store, _ := recordFourByteRun(t, recorder.DefaultSnapshotPeriod)
	liveBuilder := region.NewBuilder(region.DefaultCapacity, nil)
	live := make([]byte, 4)
	liveBuilder.Register(live, "state")
	liveSet := liveBuilder.Freeze()

	cur, err := Open(store, "playback.bin", liveSet, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cur.Close()

	if cur.Speed() != 1 {
		t.Fatalf("initial speed = %d, want 1", cur.Speed())
	}
	cur.Slower() // +1 -> -2
	if cur.Speed() != -2 {
		t.Fatalf("speed after Slower = %d, want -2", cur.Speed())
	}
	cur.Slower() // -2 -> -4
	if cur.Speed() != -4 {
		t.Fatalf("speed after second Slower = %d, want -4", cur.Speed())
	}
	if err := cur.Faster(); err != nil { // -4 -> -2
		t.Fatalf("Faster: %v", err)
	}
	if cur.Speed() != -2 {
		t.Fatalf("speed after Faster = %d, want -2", cur.Speed())
	}
	if err := cur.Faster(); err != nil { // -2 -> +1
		t.Fatalf("Faster: %v", err)
	}
	if cur.Speed() != 1 {
		t.Fatalf("speed after leaving slow-mo = %d, want 1", cur.Speed())
	}
	if err := cur.Faster(); err != nil { // +1 -> +2
		t.Fatalf("Faster: %v", err)
	}
	if cur.Speed() != 2 {
		t.Fatalf("speed after Faster = %d, want 2", cur.Speed())
	}
}
