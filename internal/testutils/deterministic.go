package testutils

import (
	"fmt"
	"sync"
)

// IDSequence generates UUID-shaped identifiers that are stable across runs:
// 00000001-0000-4000-8000-000000000001, 00000002-..., and so on.
type IDSequence struct {
	mu      sync.Mutex
	counter uint64
}

// Next returns the next identifier.
func (s *IDSequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	return fmt.Sprintf("%08d-0000-4000-8000-%012d", s.counter, s.counter)
}
