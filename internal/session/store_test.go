package session

import (
	"testing"
	"time"
)

func TestToggleAddsAndRemoves(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Minute)
	store.Begin("u1", nil)

	selected, ok := store.Toggle("u1", 3)
	if !ok || len(selected) != 1 || selected[0] != 3 {
		t.Fatalf("unexpected selection after first toggle: %v (ok=%v)", selected, ok)
	}

	selected, ok = store.Toggle("u1", 5)
	if !ok || len(selected) != 2 {
		t.Fatalf("unexpected selection after second toggle: %v", selected)
	}

	selected, ok = store.Toggle("u1", 3)
	if !ok || len(selected) != 1 || selected[0] != 5 {
		t.Fatalf("toggle must remove an already selected field: %v", selected)
	}
}

func TestToggleWithoutSession(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Minute)
	if _, ok := store.Toggle("ghost", 1); ok {
		t.Fatal("toggle must fail without a live session")
	}
}

func TestExpiry(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Minute)
	current := time.Unix(1000, 0)
	store.now = func() time.Time { return current }

	store.Begin("u1", []int64{1})
	if _, ok := store.Get("u1"); !ok {
		t.Fatal("session must be live right after Begin")
	}

	current = current.Add(2 * time.Minute)
	if _, ok := store.Get("u1"); ok {
		t.Fatal("session must expire after TTL")
	}
}

func TestEnd(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Minute)
	store.Begin("u1", []int64{1, 2})
	store.End("u1")

	if _, ok := store.Get("u1"); ok {
		t.Fatal("ended session must be gone")
	}
}

func TestPurgeRemovesExpired(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Minute)
	current := time.Unix(1000, 0)
	store.now = func() time.Time { return current }

	store.Begin("old", nil)
	current = current.Add(2 * time.Minute)
	store.Begin("fresh", nil)

	store.purge()

	if _, ok := store.entries["old"]; ok {
		t.Fatal("expired entry must be purged")
	}
	if _, ok := store.entries["fresh"]; !ok {
		t.Fatal("live entry must survive purge")
	}
}
