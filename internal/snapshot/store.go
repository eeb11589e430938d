// Package snapshot provides an atomically-replaced, observable view of the
// entities discovered by a poller (bluetooth devices, wifi networks, outputs).
package snapshot

import (
	"log"
	"sync"
	"time"
)

// Snapshot is a complete list of known entities plus the time it was taken.
// The list is always replaced wholesale; observers never see partial updates.
type Snapshot[T any] struct {
	Items []T
	Taken time.Time
}

// Listener receives the new snapshot after a replacement that changed it.
type Listener[T any] func(Snapshot[T])

// Store holds the last-known snapshot for one domain. A single owning
// component writes it; any number of observers read and subscribe.
type Store[T any] struct {
	mu        sync.RWMutex
	current   Snapshot[T]
	equal     func(a, b T) bool
	listeners map[int]Listener[T]
	nextID    int
}

// NewStore creates an empty store. equal is used only to decide whether a
// replacement changed anything and listeners need waking; it never drives
// in-place mutation.
func NewStore[T any](equal func(a, b T) bool) *Store[T] {
	return &Store[T]{
		equal:     equal,
		listeners: make(map[int]Listener[T]),
	}
}

// Current returns a copy of the current snapshot. The returned slice is the
// caller's to keep.
func (s *Store[T]) Current() Snapshot[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]T, len(s.current.Items))
	copy(items, s.current.Items)
	return Snapshot[T]{Items: items, Taken: s.current.Taken}
}

// Len returns the number of items in the current snapshot.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.current.Items)
}

// Replace installs a new snapshot. Listeners are notified only if the item
// list differs from the previous one.
func (s *Store[T]) Replace(items []T, taken time.Time) {
	owned := make([]T, len(items))
	copy(owned, items)

	s.mu.Lock()
	changed := !s.itemsEqual(s.current.Items, owned)
	s.current = Snapshot[T]{Items: owned, Taken: taken}

	var toNotify []Listener[T]
	var snap Snapshot[T]
	if changed {
		toNotify = make([]Listener[T], 0, len(s.listeners))
		for _, l := range s.listeners {
			toNotify = append(toNotify, l)
		}
		snap = s.current
	}
	s.mu.Unlock()

	for _, l := range toNotify {
		notify(l, snap)
	}
}

// Clear empties the store, as when the backing radio powers off.
func (s *Store[T]) Clear() {
	s.Replace(nil, time.Now())
}

// Subscribe registers a listener for future replacements. The returned
// function cancels the subscription.
func (s *Store[T]) Subscribe(l Listener[T]) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store[T]) itemsEqual(a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	if s.equal == nil {
		return len(a) == 0
	}
	for i := range a {
		if !s.equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func notify[T any](l Listener[T], snap Snapshot[T]) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[SNAPSHOT] Recovered from panic in listener: %v", r)
		}
	}()
	l(snap)
}
