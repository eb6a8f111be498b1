// Package registry keeps the live networks of one engine process:
// graph, simulation engine and snapshot hub per network id. Reads are
// cheap and concurrent; writes wait a bounded time for the lock and
// fail with a ConflictError instead of queueing forever.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"delivery-network-engine/internal/broadcast"
	"delivery-network-engine/internal/movement"
	"delivery-network-engine/internal/network"
)

var ErrNotFound = errors.New("network not found")

// ConflictError reports that a write could not acquire the registry
// lock within the configured wait. Callers map it to HTTP 409.
type ConflictError struct {
	Op     string
	Waited time.Duration
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("registry %s: lock not acquired within %s", e.Op, e.Waited)
}

// Entry bundles everything the process holds for one network.
type Entry struct {
	Network *network.Network
	Engine  *movement.Engine
	Hub     *broadcast.Hub
}

type Registry struct {
	mu       sync.RWMutex
	entries  map[uuid.UUID]*Entry
	lockWait time.Duration
}

func New(lockWait time.Duration) *Registry {
	if lockWait <= 0 {
		lockWait = 2 * time.Second
	}
	return &Registry{
		entries:  make(map[uuid.UUID]*Entry),
		lockWait: lockWait,
	}
}

// acquire polls for the write lock until the wait budget runs out.
func (r *Registry) acquire(op string) error {
	deadline := time.Now().Add(r.lockWait)
	for {
		if r.mu.TryLock() {
			return nil
		}
		if time.Now().After(deadline) {
			return &ConflictError{Op: op, Waited: r.lockWait}
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (r *Registry) Get(id uuid.UUID) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// List returns entries ordered by creation time, oldest first.
func (r *Registry) List() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Network, out[j].Network
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Put registers a new network. Ids are unique; registering an existing
// id is an error.
func (r *Registry) Put(e *Entry) error {
	if err := r.acquire("put"); err != nil {
		return err
	}
	defer r.mu.Unlock()
	if _, exists := r.entries[e.Network.ID]; exists {
		return fmt.Errorf("network %s already registered", e.Network.ID)
	}
	r.entries[e.Network.ID] = e
	return nil
}

// Delete removes a network, stopping its engine and closing its hub so
// stream subscribers see end of stream.
func (r *Registry) Delete(id uuid.UUID) (*Entry, error) {
	if err := r.acquire("delete"); err != nil {
		return nil, err
	}
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return nil, ErrNotFound
	}
	delete(r.entries, id)
	r.mu.Unlock()

	// Engine shutdown waits for the in-flight tick; do it outside the
	// registry lock so readers are not held up.
	if e.Engine != nil {
		e.Engine.Stop()
	}
	if e.Hub != nil {
		e.Hub.Close()
	}
	return e, nil
}

// Shutdown stops every engine and closes every hub. Used on process
// exit; the registry is not usable afterwards.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	entries := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.entries = make(map[uuid.UUID]*Entry)
	r.mu.Unlock()

	for _, e := range entries {
		if e.Engine != nil {
			e.Engine.Stop()
		}
		if e.Hub != nil {
			e.Hub.Close()
		}
	}
}
