package registry

import (
	"errors"
	"testing"
	"time"

	"delivery-network-engine/internal/broadcast"
	"delivery-network-engine/internal/network"
)

func newEntry(t *testing.T, name string) *Entry {
	t.Helper()
	return &Entry{
		Network: network.New(name),
		Hub:     broadcast.NewHub(4),
	}
}

func TestPutGetDelete(t *testing.T) {
	r := New(time.Second)
	e := newEntry(t, "alpha")

	if err := r.Put(e); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok := r.Get(e.Network.ID)
	if !ok || got != e {
		t.Fatalf("Get returned (%v, %v)", got, ok)
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}

	removed, err := r.Delete(e.Network.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if removed != e {
		t.Fatal("Delete returned different entry")
	}
	if _, ok := r.Get(e.Network.ID); ok {
		t.Fatal("entry still present after Delete")
	}
}

func TestPutRejectsDuplicateID(t *testing.T) {
	r := New(time.Second)
	e := newEntry(t, "alpha")
	if err := r.Put(e); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := r.Put(e); err == nil {
		t.Fatal("expected error on duplicate id")
	}
}

func TestDeleteUnknownID(t *testing.T) {
	r := New(time.Second)
	if _, err := r.Delete(network.New("x").ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteClosesHub(t *testing.T) {
	r := New(time.Second)
	e := newEntry(t, "alpha")
	sub := e.Hub.Subscribe()
	if err := r.Put(e); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if _, err := r.Delete(e.Network.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	select {
	case _, open := <-sub.C():
		if open {
			t.Fatal("expected closed channel after Delete")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber channel not closed")
	}
}

func TestWriteConflictUnderHeldLock(t *testing.T) {
	r := New(30 * time.Millisecond)

	// Simulate a long-running writer holding the lock.
	r.mu.Lock()
	release := make(chan struct{})
	go func() {
		<-release
		r.mu.Unlock()
	}()
	defer close(release)

	err := r.Put(newEntry(t, "blocked"))
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want *ConflictError", err)
	}
	if conflict.Op != "put" {
		t.Fatalf("conflict op = %q, want put", conflict.Op)
	}
}

func TestReadsProceedDuringReads(t *testing.T) {
	r := New(time.Second)
	for _, name := range []string{"a", "b", "c"} {
		if err := r.Put(newEntry(t, name)); err != nil {
			t.Fatalf("Put(%s): %v", name, err)
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			r.List()
			r.Len()
		}
	}()
	for i := 0; i < 100; i++ {
		r.List()
	}
	<-done

	if got := len(r.List()); got != 3 {
		t.Fatalf("List len = %d, want 3", got)
	}
}

func TestListOrderedByCreation(t *testing.T) {
	r := New(time.Second)
	first := newEntry(t, "first")
	second := newEntry(t, "second")
	second.Network.CreatedAt = first.Network.CreatedAt.Add(time.Minute)
	if err := r.Put(second); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := r.Put(first); err != nil {
		t.Fatalf("Put: %v", err)
	}

	list := r.List()
	if len(list) != 2 || list[0] != first || list[1] != second {
		t.Fatalf("unexpected order: %v", list)
	}
}
