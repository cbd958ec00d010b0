// Package memory provides an in-memory audit store for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"vaultgate/pkg/platform/audit"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string][]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[string][]audit.Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.SubjectID] = append(s.events[event.SubjectID], event)
	return nil
}

func (s *InMemoryStore) CountSince(_ context.Context, subjectID string, kind audit.Kind, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, event := range s.events[subjectID] {
		if kind != audit.KindAny && event.Kind != kind {
			continue
		}
		if event.Timestamp.Before(since) {
			continue
		}
		count++
	}
	return count, nil
}

// ListBySubject returns a copy of the subject's events in append order.
func (s *InMemoryStore) ListBySubject(_ context.Context, subjectID string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[subjectID]...), nil
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[string][]audit.Event)
}
