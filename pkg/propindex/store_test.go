package propindex

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *FileIndexStore {
	t.Helper()
	return NewFileIndexStore(filepath.Join(t.TempDir(), "propindex.db"))
}

func TestFileStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)

	records := map[uint64]string{
		1: "name",
		2: "age",
		3: "a considerably longer property key that snappy can chew on",
	}
	for id, key := range records {
		if err := store.WriteIndex(id, key); err != nil {
			t.Fatalf("write %d: %v", id, err)
		}
	}

	for id, want := range records {
		got, err := store.LoadIndex(context.Background(), id)
		if err != nil {
			t.Fatalf("load %d: %v", id, err)
		}
		if got != want {
			t.Errorf("load %d = %q, want %q", id, got, want)
		}
	}
}

func TestFileStoreMissingID(t *testing.T) {
	store := newTestStore(t)
	store.WriteIndex(1, "name")

	_, err := store.LoadIndex(context.Background(), 42)
	if !errors.Is(err, ErrIndexNotFound) {
		t.Errorf("err = %v, want ErrIndexNotFound", err)
	}
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	store := newTestStore(t)

	all, err := store.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll on missing file: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("LoadAll = %v, want empty", all)
	}

	_, err = store.LoadIndex(context.Background(), 1)
	if !errors.Is(err, ErrIndexNotFound) {
		t.Errorf("err = %v, want ErrIndexNotFound", err)
	}
}

func TestFileStoreLastRecordWins(t *testing.T) {
	store := newTestStore(t)

	store.WriteIndex(7, "colour")
	store.WriteIndex(7, "color")

	got, err := store.LoadIndex(context.Background(), 7)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != "color" {
		t.Errorf("load = %q, want the later record", got)
	}
}

func TestFileStoreTruncatedRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "propindex.db")
	store := NewFileIndexStore(path)

	if err := store.WriteIndex(1, "name"); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if err := os.WriteFile(path, data[:len(data)-3], 0o644); err != nil {
		t.Fatalf("truncate file: %v", err)
	}

	// Corruption must surface as an error, never as absence
	_, err = store.LoadIndex(context.Background(), 1)
	if err == nil {
		t.Fatal("truncated store must fail to load")
	}
	if errors.Is(err, ErrIndexNotFound) {
		t.Errorf("corruption reported as not-found: %v", err)
	}
}

func TestFileStoreChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "propindex.db")
	store := NewFileIndexStore(path)

	if err := store.WriteIndex(1, "name"); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	// Flip a bit inside the compressed payload
	data[12+1] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("rewrite file: %v", err)
	}

	_, err = store.LoadIndex(context.Background(), 1)
	if err == nil {
		t.Fatal("corrupted store must fail to load")
	}
	if errors.Is(err, ErrIndexNotFound) {
		t.Errorf("corruption reported as not-found: %v", err)
	}
}
