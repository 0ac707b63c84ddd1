// Package queue implements the manually ordered publish queue over the
// content store.
package queue

import (
	"context"
	"fmt"

	"github.com/jonesrussell/postpipe/internal/domain"
	"github.com/jonesrussell/postpipe/internal/logger"
	"github.com/jonesrussell/postpipe/internal/store"
)

// Manager performs status/position transitions for content items. All
// operations are read-modify-write against the store; concurrent enqueues
// from external callers are not serialized, so duplicate positions are
// possible. The store's secondary ordering by creation time keeps selection
// deterministic either way.
type Manager struct {
	store  store.Store
	logger logger.Logger
}

// NewManager creates a queue manager.
func NewManager(s store.Store, log logger.Logger) *Manager {
	return &Manager{store: s, logger: log}
}

// Enqueue moves a draft or failed item into the queue at the tail
// (current queued count + 1). The platform is not checked against the
// provider registry here: a provider may be temporarily unconfigured, and
// the executor reports that case as a publish failure instead.
func (m *Manager) Enqueue(ctx context.Context, id string) (*domain.ContentItem, error) {
	item, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	count, err := m.store.CountByStatus(ctx, domain.StatusQueued)
	if err != nil {
		return nil, fmt.Errorf("count queued items: %w", err)
	}

	if err := item.Enqueue(int(count) + 1); err != nil {
		return nil, err
	}

	if err := m.store.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("persist enqueue: %w", err)
	}

	m.logger.Info("content item enqueued",
		logger.String("item_id", item.ID),
		logger.String("platform", item.Platform),
		logger.Int("position", *item.Position))
	return item, nil
}

// Dequeue moves a queued item back to draft and clears its position.
func (m *Manager) Dequeue(ctx context.Context, id string) (*domain.ContentItem, error) {
	item, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := item.Dequeue(); err != nil {
		return nil, err
	}

	if err := m.store.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("persist dequeue: %w", err)
	}

	m.logger.Info("content item dequeued", logger.String("item_id", item.ID))
	return item, nil
}

// Reorder sets the position of a queued item. Sibling positions are not
// renormalized.
func (m *Manager) Reorder(ctx context.Context, id string, position int) (*domain.ContentItem, error) {
	item, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := item.SetPosition(position); err != nil {
		return nil, err
	}

	if err := m.store.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("persist reorder: %w", err)
	}

	m.logger.Info("content item reordered",
		logger.String("item_id", item.ID),
		logger.Int("position", position))
	return item, nil
}

// List returns all queued items ordered by position ascending.
func (m *Manager) List(ctx context.Context) ([]domain.ContentItem, error) {
	return m.store.ListByStatus(ctx, domain.StatusQueued, 0)
}

// Depth returns the number of queued items.
func (m *Manager) Depth(ctx context.Context) (int64, error) {
	return m.store.CountByStatus(ctx, domain.StatusQueued)
}

// NextInQueue returns the queued item with the lowest position, or nil when
// the queue is empty. Ties are broken by creation time.
func (m *Manager) NextInQueue(ctx context.Context) (*domain.ContentItem, error) {
	items, err := m.store.ListByStatus(ctx, domain.StatusQueued, 1)
	if err != nil {
		return nil, fmt.Errorf("next in queue: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}
