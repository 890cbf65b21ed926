package state

import (
	"maps"
	"slices"
	"sync"

	"github.com/couchcryptid/flood-extent-service/internal/domain"
)

// Change describes one store transition.
type Change struct {
	Prev   ViewState
	Next   ViewState
	Index  domain.Index
	Reason string
}

// Listener observes store changes.
type Listener func(Change)

// Store holds the current view state and the index it is valid against.
// Listeners run synchronously with the store locked, so they observe changes
// in order and must not call back into the store.
type Store struct {
	mu        sync.Mutex
	current   ViewState
	idx       domain.Index
	listeners map[int]Listener
	nextID    int
}

// NewStore creates a store with an initial snapshot.
func NewStore(initial ViewState, idx domain.Index) *Store {
	return &Store{
		current:   initial,
		idx:       idx,
		listeners: make(map[int]Listener),
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Index returns the index the current state is valid against.
func (s *Store) Index() domain.Index {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx
}

// Current returns the state together with the index it is valid against.
func (s *Store) Current() (ViewState, domain.Index) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.idx
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Apply runs m against the current state and returns the result. Listeners
// are only notified when the state actually changed.
func (s *Store) Apply(m Mutation) (ViewState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := Apply(s.current, s.idx, m)
	if err != nil {
		return s.current, err
	}
	reason := domain.ReasonPresentation
	if m.Selection() {
		reason = domain.ReasonTransition
	}
	s.set(next, s.idx, reason, false)
	return next, nil
}

// Update replaces the state with fn(current, index).
func (s *Store) Update(reason string, fn func(ViewState, domain.Index) ViewState) ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := fn(s.current, s.idx)
	s.set(next, s.idx, reason, false)
	return next
}

// Reset installs a new index and state. Listeners are always notified since
// the index itself changed.
func (s *Store) Reset(idx domain.Index, next ViewState, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(next, idx, reason, true)
}

func (s *Store) set(next ViewState, idx domain.Index, reason string, force bool) {
	prev := s.current
	if next == prev && !force {
		return
	}
	s.current = next
	s.idx = idx

	c := Change{Prev: prev, Next: next, Index: idx, Reason: reason}
	for _, id := range slices.Sorted(maps.Keys(s.listeners)) {
		s.listeners[id](c)
	}
}
