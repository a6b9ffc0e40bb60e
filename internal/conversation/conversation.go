// Package conversation holds the ordered turn log of a document chat session.
//
// The log is append-only during normal operation. Reset atomically replaces
// the whole sequence with a single assistant turn, and Rollback can drop the
// most recent turn when the caller opted into rollback-on-failure.
package conversation

import (
	"errors"
	"fmt"
	"sync"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the roles a conversation accepts.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ErrInvalidRole is returned by Append for roles other than user or assistant.
var ErrInvalidRole = errors.New("conversation: invalid role")

// Turn is one message in the conversation. Turns are values; the store never
// hands out references to its own entries.
type Turn struct {
	Role     Role   `json:"role"`
	Content  string `json:"content"`
	Sequence int    `json:"sequence"`
}

// Store is the ordered turn log. It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	turns []Turn
	last  int // highest sequence ever issued; never reused
}

// NewStore creates a store seeded with a single assistant greeting turn.
func NewStore(greeting string) *Store {
	s := &Store{}
	s.turns = []Turn{s.issue(RoleAssistant, greeting)}
	return s
}

// issue assigns the next sequence number. Callers must hold mu (or own s).
func (s *Store) issue(role Role, content string) Turn {
	s.last++
	return Turn{Role: role, Content: content, Sequence: s.last}
}

// Append adds a turn at the end of the log and returns it.
func (s *Store) Append(role Role, content string) (Turn, error) {
	if !role.Valid() {
		return Turn{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.issue(role, content)
	s.turns = append(s.turns, t)
	return t, nil
}

// Snapshot returns a copy of every turn appended so far, in order.
func (s *Store) Snapshot() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of turns in the log.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Last returns the most recent turn.
func (s *Store) Last() (Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.turns) == 0 {
		return Turn{}, false
	}
	return s.turns[len(s.turns)-1], true
}

// Reset replaces the whole log with one assistant turn carrying message.
// Sequence numbers continue from where the previous log left off.
func (s *Store) Reset(message string) Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.issue(RoleAssistant, message)
	s.turns = []Turn{t}
	return t
}

// Rollback removes the last turn if, and only if, it carries seq. It reports
// whether a turn was removed.
func (s *Store) Rollback(seq int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.turns)
	if n == 0 || s.turns[n-1].Sequence != seq {
		return false
	}
	s.turns = s.turns[:n-1]
	return true
}
