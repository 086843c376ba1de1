package saverestore

import (
	"testing"

	"rewind-core-dx/internal/blobstore"
	"rewind-core-dx/internal/region"
)

func buildSet(sizes map[string]int) (*region.Set, map[string][]byte) {
	b := region.NewBuilder(region.DefaultCapacity, nil)
	mems := make(map[string][]byte)
	for _, name := range []string{"pos", "hp"} {
		if n, ok := sizes[name]; ok {
			mem := make([]byte, n)
			mems[name] = mem
			b.Register(mem, name)
		}
	}
	return b.Freeze(), mems
}

func TestSaveRestoreRoundTrip(t *testing.T) {
	store := blobstore.NewMemStore()
	set, mems := buildSet(map[string]int{"pos": 4, "hp": 2})

	copy(mems["pos"], []byte{1, 2, 3, 4})
	copy(mems["hp"], []byte{9, 9})

	if err := Save(store, "save.bin", set, nil); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Corrupt live memory, then restore should bring it back.
	for i := range mems["pos"] {
		mems["pos"][i] = 0
	}
	for i := range mems["hp"] {
		mems["hp"][i] = 0
	}

	if err := Restore(store, "save.bin", set, nil); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	want := []byte{1, 2, 3, 4}
	for i, b := range want {
		if mems["pos"][i] != b {
			t.Errorf("pos[%d] = %d, want %d", i, mems["pos"][i], b)
		}
	}
	if mems["hp"][0] != 9 || mems["hp"][1] != 9 {
		t.Errorf("hp = %v, want [9 9]", mems["hp"])
	}
}

func TestRestoreRejectsCountMismatchWithoutMutating(t *testing.T) {
	store := blobstore.NewMemStore()
	recorded, recordedMems := buildSet(map[string]int{"pos": 4, "hp": 2})
	copy(recordedMems["pos"], []byte{1, 2, 3, 4})

	if err := Save(store, "save.bin", recorded, nil); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Live set now has an extra region ("mp") that wasn't present when
	// recorded — simulates layout drift after adding a field.
	liveBuilder := region.NewBuilder(region.DefaultCapacity, nil)
	pos := make([]byte, 4)
	hp := make([]byte, 2)
	mp := make([]byte, 2)
	liveBuilder.Register(pos, "pos")
	liveBuilder.Register(hp, "hp")
	liveBuilder.Register(mp, "mp")
	live := liveBuilder.Freeze()

	pos[0] = 0xAA // sentinel: must survive a refused restore untouched

	if err := Restore(store, "save.bin", live, nil); err == nil {
		t.Fatal("expected Restore to refuse COUNT mismatch")
	}
	if pos[0] != 0xAA {
		t.Fatal("Restore must not mutate live memory when it refuses")
	}
}

func TestRestoreRejectsMissingBlob(t *testing.T) {
	store := blobstore.NewMemStore()
	set, _ := buildSet(map[string]int{"pos": 4})
	if err := Restore(store, "missing.bin", set, nil); err == nil {
		t.Fatal("expected error restoring from a missing blob")
	}
}
