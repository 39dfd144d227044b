// Package memory holds per-user-per-chat conversation history for the
// assistant. The contract is best-effort: history is lost on restart and
// evicted after a period of inactivity.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Turn is one conversation message.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Store is the conversation history interface. Keys are composed by Key.
type Store interface {
	Get(ctx context.Context, key string) ([]Turn, error)
	Append(ctx context.Context, key string, turns ...Turn) error
	Seed(ctx context.Context, key string, turns []Turn) error
}

// Key composes the memory key for a user and chat.
func Key(userID int64, chatID string) string {
	return fmt.Sprintf("u:%d:c:%s", userID, chatID)
}

type entry struct {
	turns    []Turn
	lastUsed time.Time
}

// InMemory is the default process-local store with TTL eviction.
type InMemory struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
}

// NewInMemory creates a store evicting entries idle longer than ttl.
func NewInMemory(ttl time.Duration) *InMemory {
	if ttl <= 0 {
		ttl = 60 * time.Minute
	}
	return &InMemory{entries: make(map[string]*entry), ttl: ttl}
}

func (s *InMemory) evictLocked(now time.Time) {
	for key, e := range s.entries {
		if now.Sub(e.lastUsed) > s.ttl {
			delete(s.entries, key)
		}
	}
}

// Get returns the history for key, or an empty slice.
func (s *InMemory) Get(_ context.Context, key string) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.evictLocked(now)

	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	e.lastUsed = now
	out := make([]Turn, len(e.turns))
	copy(out, e.turns)
	return out, nil
}

// Append adds turns to the history for key.
func (s *InMemory) Append(_ context.Context, key string, turns ...Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.evictLocked(now)

	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	e.turns = append(e.turns, turns...)
	e.lastUsed = now
	return nil
}

// Seed replaces the history for key only when it is currently empty. Used
// to adopt a UI-side history on the first call of a chat.
func (s *InMemory) Seed(_ context.Context, key string, turns []Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && len(e.turns) > 0 {
		return nil
	}
	copied := make([]Turn, len(turns))
	copy(copied, turns)
	s.entries[key] = &entry{turns: copied, lastUsed: time.Now()}
	return nil
}
