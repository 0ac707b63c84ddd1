// Package storetest provides an in-memory Store for tests.
package storetest

import (
	"context"
	"sort"
	"sync"

	"github.com/jonesrussell/postpipe/internal/domain"
)

// MemStore is a thread-safe in-memory Store. Error fields let tests inject
// failures on specific operations.
type MemStore struct {
	mu    sync.Mutex
	items map[string]domain.ContentItem

	CreateErr error
	GetErr    error
	UpdateErr error
	ListErr   error
	CountErr  error

	// Updates counts successful Update calls.
	Updates int
}

// New creates an empty MemStore.
func New() *MemStore {
	return &MemStore{items: make(map[string]domain.ContentItem)}
}

// Put seeds an item, bypassing transition rules.
func (s *MemStore) Put(item domain.ContentItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item
}

// Create implements store.Store.
func (s *MemStore) Create(_ context.Context, item *domain.ContentItem) error {
	if s.CreateErr != nil {
		return s.CreateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = *item
	return nil
}

// Get implements store.Store.
func (s *MemStore) Get(_ context.Context, id string) (*domain.ContentItem, error) {
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := item
	return &copied, nil
}

// Update implements store.Store.
func (s *MemStore) Update(_ context.Context, item *domain.ContentItem) error {
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ID]; !ok {
		return domain.ErrNotFound
	}
	s.items[item.ID] = *item
	s.Updates++
	return nil
}

// ListByStatus implements store.Store, ordering by position ascending with
// creation time as tie-break.
func (s *MemStore) ListByStatus(_ context.Context, status domain.Status, limit int) ([]domain.ContentItem, error) {
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]domain.ContentItem, 0, len(s.items))
	for _, item := range s.items {
		if item.Status == status {
			matched = append(matched, item)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		pi, pj := positionOf(matched[i]), positionOf(matched[j])
		if pi != pj {
			return pi < pj
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// CountByStatus implements store.Store.
func (s *MemStore) CountByStatus(_ context.Context, status domain.Status) (int64, error) {
	if s.CountErr != nil {
		return 0, s.CountErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, item := range s.items {
		if item.Status == status {
			count++
		}
	}
	return count, nil
}

func positionOf(item domain.ContentItem) int {
	if item.Position == nil {
		return int(^uint(0) >> 1) // sort position-less rows last
	}
	return *item.Position
}
