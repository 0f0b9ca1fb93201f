package jobs

import (
	"testing"
	"time"
)

func TestRetentionEvictsOldestTerminal(t *testing.T) {
	store := newTestStore(t, 10)

	var ids []string
	for i := 0; i < 10; i++ {
		rec, err := store.Create("openai", "payload", nil)
		if err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
		if _, err := store.Complete(rec.ID, "raw", map[string]any{}, nil, nil); err != nil {
			t.Fatalf("Complete returned error: %v", err)
		}
		ids = append(ids, rec.ID)
		time.Sleep(time.Millisecond) // distinct created_at ordering
	}

	// The 11th creation pushes the population over the cap; exactly the
	// oldest terminal job must go.
	newest, err := store.Create("openai", "payload", nil)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if _, err := store.Meta(ids[0]); err == nil {
		t.Fatal("oldest terminal job survived eviction")
	}
	for _, id := range ids[1:] {
		if _, err := store.Meta(id); err != nil {
			t.Fatalf("job %s was evicted unexpectedly: %v", id, err)
		}
	}
	if _, err := store.Meta(newest.ID); err != nil {
		t.Fatalf("newest job missing: %v", err)
	}

	list, err := store.ListJobs()
	if err != nil {
		t.Fatalf("ListJobs returned error: %v", err)
	}
	if got := len(list.InProgress) + len(list.Completed); got != 10 {
		t.Fatalf("retained count = %d, want 10", got)
	}
}

func TestRetentionNeverEvictsNonTerminal(t *testing.T) {
	store := newTestStore(t, 1)

	var ids []string
	for i := 0; i < 3; i++ {
		rec, err := store.Create("openai", "payload", nil)
		if err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
		ids = append(ids, rec.ID)
		time.Sleep(time.Millisecond)
	}

	// All jobs are pending, so the cap cannot be enforced.
	for _, id := range ids {
		if _, err := store.Meta(id); err != nil {
			t.Fatalf("pending job %s was evicted: %v", id, err)
		}
	}
}

func TestRetentionStopsAtCap(t *testing.T) {
	store := newTestStore(t, 2)

	for i := 0; i < 5; i++ {
		rec, err := store.Create("openai", "payload", nil)
		if err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
		if _, err := store.Complete(rec.ID, "raw", map[string]any{}, nil, nil); err != nil {
			t.Fatalf("Complete returned error: %v", err)
		}
		time.Sleep(time.Millisecond)
	}

	list, err := store.ListJobs()
	if err != nil {
		t.Fatalf("ListJobs returned error: %v", err)
	}
	if got := len(list.InProgress) + len(list.Completed); got != 2 {
		t.Fatalf("retained count = %d, want 2", got)
	}
}
