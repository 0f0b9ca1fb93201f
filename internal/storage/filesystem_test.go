package storage

import (
	"bytes"
	"errors"
	"testing"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	return store
}

func TestWriteRead(t *testing.T) {
	store := newTestStore(t)
	if err := store.Write("job1/input.txt", []byte("hello")); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	data, err := store.Read("job1/input.txt")
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("Read = %q, want %q", data, "hello")
	}
}

func TestReadMissingKey(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Read("job1/missing.txt"); !errors.Is(err, ErrNotExist) {
		t.Fatalf("Read error = %v, want ErrNotExist", err)
	}
}

func TestAppendAndReadFrom(t *testing.T) {
	store := newTestStore(t)
	key := "job1/stream.log"

	// Polling before the first append must not fail.
	data, offset, err := store.ReadFrom(key, 0)
	if err != nil {
		t.Fatalf("ReadFrom on missing file returned error: %v", err)
	}
	if len(data) != 0 || offset != 0 {
		t.Fatalf("ReadFrom = (%q, %d), want empty at offset 0", data, offset)
	}

	if err := store.Append(key, []byte("AB")); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if err := store.Append(key, []byte("CD")); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}

	var rebuilt bytes.Buffer
	offset = 0
	for {
		chunk, next, err := store.ReadFrom(key, offset)
		if err != nil {
			t.Fatalf("ReadFrom returned error: %v", err)
		}
		if len(chunk) == 0 {
			break
		}
		if next <= offset {
			t.Fatalf("offset did not advance: %d -> %d", offset, next)
		}
		rebuilt.Write(chunk)
		offset = next
	}
	if rebuilt.String() != "ABCD" {
		t.Fatalf("rebuilt log = %q, want %q", rebuilt.String(), "ABCD")
	}
	if offset != 4 {
		t.Fatalf("final offset = %d, want 4", offset)
	}

	// Re-reading from the final offset never re-delivers bytes.
	chunk, next, err := store.ReadFrom(key, offset)
	if err != nil {
		t.Fatalf("ReadFrom returned error: %v", err)
	}
	if len(chunk) != 0 || next != offset {
		t.Fatalf("ReadFrom past end = (%q, %d), want empty at %d", chunk, next, offset)
	}
}

func TestAppendEmptyIsNoop(t *testing.T) {
	store := newTestStore(t)
	if err := store.Append("job1/stream.log", nil); err != nil {
		t.Fatalf("Append(nil) returned error: %v", err)
	}
	if store.Exists("job1/stream.log") {
		t.Fatal("empty append created the file")
	}
}

func TestListAndRemoveDirs(t *testing.T) {
	store := newTestStore(t)
	for _, id := range []string{"a", "b", "c"} {
		if err := store.Write(id+"/meta.json", []byte("{}")); err != nil {
			t.Fatalf("Write returned error: %v", err)
		}
	}
	dirs, err := store.ListDirs()
	if err != nil {
		t.Fatalf("ListDirs returned error: %v", err)
	}
	if len(dirs) != 3 {
		t.Fatalf("ListDirs = %v, want 3 entries", dirs)
	}
	if err := store.RemoveDir("b"); err != nil {
		t.Fatalf("RemoveDir returned error: %v", err)
	}
	dirs, err = store.ListDirs()
	if err != nil {
		t.Fatalf("ListDirs returned error: %v", err)
	}
	if len(dirs) != 2 {
		t.Fatalf("ListDirs after remove = %v, want 2 entries", dirs)
	}
}

func TestSanitizeKeyRejectsTraversal(t *testing.T) {
	store := newTestStore(t)
	cases := []string{"", "..", "../etc/passwd", "a/../../b"}
	for _, key := range cases {
		if err := store.Write(key, []byte("x")); err == nil {
			t.Fatalf("Write(%q) succeeded, want error", key)
		}
	}
}
