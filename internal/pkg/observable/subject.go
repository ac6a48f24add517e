// Package observable provides a value holder that notifies subscribers of
// every change, in the order the changes were made.
package observable

import "sync"

// Subject holds a value of T. Updates are serialized and every subscriber
// sees them in order, synchronously, on the updating goroutine.
type Subject[T any] struct {
	mu     sync.Mutex
	value  T
	nextID int
	subs   map[int]func(T)
}

func NewSubject[T any](initial T) *Subject[T] {
	return &Subject[T]{value: initial, subs: make(map[int]func(T))}
}

func (s *Subject[T]) Value() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Set replaces the value and notifies subscribers.
func (s *Subject[T]) Set(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
	s.emit()
}

// Update applies fn to the current value atomically and notifies subscribers.
func (s *Subject[T]) Update(fn func(T) T) T {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = fn(s.value)
	s.emit()
	return s.value
}

// emit runs with mu held so no two emissions interleave. Subscribers must
// not call back into the subject.
func (s *Subject[T]) emit() {
	for id := 0; id < s.nextID; id++ {
		if fn, ok := s.subs[id]; ok {
			fn(s.value)
		}
	}
}

// Subscribe calls fn with the current value and then on every change.
// The returned func removes the subscription.
func (s *Subject[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	fn(s.value)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}
