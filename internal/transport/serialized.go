// internal/transport/serialized.go
package transport

import (
	"context"
	"sync"
)

// Serialized wraps a link so that the polling loop and asynchronous write
// commands never overlap on the wire. One mutex per physical link.
type Serialized struct {
	mu   sync.Mutex
	link Link
}

// Serialize returns l guarded by a mutex. Wrapping a *Serialized is a no-op.
func Serialize(l Link) *Serialized {
	if s, ok := l.(*Serialized); ok {
		return s
	}
	return &Serialized{link: l}
}

func (s *Serialized) Read(ctx context.Context, address, count uint16, unit uint8, class RegisterClass) ([]uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link.Read(ctx, address, count, unit, class)
}

func (s *Serialized) Write(ctx context.Context, words []uint16, address uint16, unit uint8, class RegisterClass) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link.Write(ctx, words, address, unit, class)
}

// Unwrap returns the guarded link.
func (s *Serialized) Unwrap() Link { return s.link }
