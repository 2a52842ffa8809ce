package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/thumbsmith/thumbsmith/internal/domain"
)

var ErrRequestNotFound = errors.New("request not found")

type MemoryRequestStore struct {
	mu       sync.RWMutex
	requests map[string]domain.Request
}

func NewMemoryRequestStore() *MemoryRequestStore {
	return &MemoryRequestStore{
		requests: make(map[string]domain.Request),
	}
}

func (s *MemoryRequestStore) Create(_ context.Context, req domain.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = req
	return nil
}

func (s *MemoryRequestStore) Get(_ context.Context, id string) (domain.Request, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	return req, ok, nil
}

func (s *MemoryRequestStore) UpdateStatus(_ context.Context, id, status string) (domain.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return domain.Request{}, ErrRequestNotFound
	}

	req.Status = status
	req.UpdatedAt = time.Now().UTC()
	s.requests[id] = req
	return req, nil
}

func (s *MemoryRequestStore) SetResult(_ context.Context, id, status string, variations []domain.Variation, errMsg string) (domain.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return domain.Request{}, ErrRequestNotFound
	}

	req.Status = status
	req.Variations = variations
	req.Error = errMsg
	req.UpdatedAt = time.Now().UTC()
	s.requests[id] = req
	return req, nil
}
