// Package observe provides change notification for in-memory aggregates.
package observe

import "sync"

// Subject fans a change signal out to registered listeners. The zero value
// is ready to use.
type Subject struct {
	mu        sync.Mutex
	next      int
	listeners map[int]func()
}

// Subscribe registers fn and returns a function that removes it.
func (s *Subject) Subscribe(fn func()) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listeners == nil {
		s.listeners = make(map[int]func())
	}
	id := s.next
	s.next++
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Notify calls every listener. Listeners run outside the subject lock and
// must not assume any particular order.
func (s *Subject) Notify() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
