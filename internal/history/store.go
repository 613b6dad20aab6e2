// Package history keeps the bounded, duplicate-free log of submitted command
// lines and persists it between sessions.
package history

// DefaultCapacity is the number of entries kept when no size is configured.
const DefaultCapacity = 100

// Entry is one remembered line. Index grows monotonically with every
// recorded line, so a line that is re-entered gets a fresh, higher index.
type Entry struct {
	Index int
	Line  string
}

// Store is a bounded, unique history of lines, oldest first internally.
// It is owned by a single session and is not safe for concurrent use.
type Store struct {
	capacity int
	next     int
	entries  []Entry
}

// New creates an empty store holding at most capacity entries.
// A non-positive capacity selects DefaultCapacity.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{capacity: capacity, next: 1}
}

// Record remembers line as the most recent entry. Lines of one character or
// less are ignored. A line already present is moved rather than duplicated,
// and the oldest entries are evicted beyond capacity.
func (s *Store) Record(line string) {
	if len(line) <= 1 {
		return
	}

	for i, e := range s.entries {
		if e.Line == line {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}

	s.entries = append(s.entries, Entry{Index: s.next, Line: line})
	s.next++

	if over := len(s.entries) - s.capacity; over > 0 {
		s.entries = append(s.entries[:0], s.entries[over:]...)
	}
}

// All returns the entries most-recent-first.
func (s *Store) All() []Entry {
	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[len(s.entries)-1-i] = e
	}
	return out
}

// Lines returns the lines oldest-first, the order they are persisted in.
func (s *Store) Lines() []string {
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Line
	}
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	return len(s.entries)
}

// Capacity returns the maximum number of entries.
func (s *Store) Capacity() int {
	return s.capacity
}
