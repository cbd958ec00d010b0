// Package memory provides an in-memory subject store for development and
// tests.
package memory

import (
	"context"
	"sync"

	"vaultgate/internal/authz"
	dErrors "vaultgate/pkg/domain-errors"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	subjects map[string]authz.Subject
}

func NewInMemoryStore(seed ...authz.Subject) *InMemoryStore {
	s := &InMemoryStore{subjects: make(map[string]authz.Subject, len(seed))}
	for _, subject := range seed {
		s.subjects[subject.ID] = subject
	}
	return s
}

func (s *InMemoryStore) Get(_ context.Context, subjectID string) (*authz.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subject, ok := s.subjects[subjectID]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "subject %s not found", subjectID)
	}
	// Copy so callers cannot mutate the stored snapshot.
	subject.TrustedDevices = append([]string(nil), subject.TrustedDevices...)
	return &subject, nil
}

func (s *InMemoryStore) Put(_ context.Context, subject authz.Subject) error {
	if subject.ID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "subject id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects[subject.ID] = subject
	return nil
}
