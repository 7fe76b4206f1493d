package engine

import (
	"slices"
	"sync"
)

// Signal is a synchronous, ordered list of handlers. Trigger calls every
// handler on the caller's goroutine, in the order they were added.
type Signal[T any] struct {
	mu       sync.Mutex
	nextID   int
	handlers []signalHandler[T]
}

type signalHandler[T any] struct {
	id int
	fn func(T)
}

// Add registers fn and returns a func that removes it. The remover is
// idempotent.
func (s *Signal[T]) Add(fn func(T)) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.handlers = append(s.handlers, signalHandler[T]{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.handlers = slices.DeleteFunc(s.handlers, func(h signalHandler[T]) bool { return h.id == id })
	}
}

// Trigger calls every handler with v. Handlers may add or remove handlers.
func (s *Signal[T]) Trigger(v T) {
	s.mu.Lock()
	hs := slices.Clone(s.handlers)
	s.mu.Unlock()
	for _, h := range hs {
		h.fn(v)
	}
}

// Len returns the number of handlers.
func (s *Signal[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

// Reset removes every handler.
func (s *Signal[T]) Reset() {
	s.mu.Lock()
	s.handlers = nil
	s.mu.Unlock()
}
