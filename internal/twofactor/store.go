// Package twofactor holds the single pending one-time login code.
package twofactor

import "sync"

// Store keeps at most one code at a time with consume-once semantics:
// ConsumeCode is the only read and it atomically clears the store, so no
// two consumers can observe the same code.
type Store struct {
	mu      sync.Mutex
	code    string
	present bool
}

func NewStore() *Store {
	return &Store{}
}

// SetCode stores a fresh code, replacing any unconsumed one.
func (s *Store) SetCode(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code = code
	s.present = true
}

// HasCode reports whether a code is waiting without consuming it.
func (s *Store) HasCode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.present
}

// ConsumeCode returns the stored code and clears it in the same step.
func (s *Store) ConsumeCode() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.present {
		return "", false
	}
	code := s.code
	s.code = ""
	s.present = false
	return code, true
}
