package feedback

import (
	"path/filepath"
	"testing"
	"time"
)

func TestStore_RecordAndLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedback.jsonl")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if err := store.Record("aws-access-key-id", "AKIAEXAMPLE", true, time.Unix(0, 0)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	snap := store.Snapshot()
	fp, known := snap.Lookup("aws-access-key-id", "AKIAEXAMPLE")
	if !known || !fp {
		t.Errorf("Lookup() = %v, %v; want true, true", fp, known)
	}
	if _, known := snap.Lookup("aws-access-key-id", "other-value"); known {
		t.Error("expected no prior feedback for an unrecorded value")
	}
}

func TestStore_RecordTwiceIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedback.jsonl")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if err := store.Record("p", "v", true, time.Unix(1, 0)); err != nil {
		t.Fatal(err)
	}
	if err := store.Record("p", "v", true, time.Unix(2, 0)); err != nil {
		t.Fatal(err)
	}

	snap := store.Snapshot()
	fp, known := snap.Lookup("p", "v")
	if !known || !fp {
		t.Errorf("Lookup() = %v, %v; want true, true", fp, known)
	}
}

func TestOpen_ReloadsExistingRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedback.jsonl")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Record("p", "v", false, time.Unix(0, 0)); err != nil {
		t.Fatal(err)
	}
	store.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	snap := reopened.Snapshot()
	fp, known := snap.Lookup("p", "v")
	if !known || fp {
		t.Errorf("Lookup() after reload = %v, %v; want false, true", fp, known)
	}
}

func TestSnapshot_IsFrozenAtCallTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedback.jsonl")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	snap := store.Snapshot()
	if err := store.Record("p", "v", true, time.Unix(0, 0)); err != nil {
		t.Fatal(err)
	}
	if _, known := snap.Lookup("p", "v"); known {
		t.Error("expected a snapshot taken before Record to not observe it")
	}
}
