// Package store provides persistence for content items. The pipeline core
// depends on the Store interface only; Postgres is the production adapter.
package store

import (
	"context"

	"github.com/jonesrussell/postpipe/internal/domain"
)

// Store is the entity-store contract the pipeline consumes. Updates write
// the full item in a single statement so status and counters never diverge.
type Store interface {
	// Create inserts a new item.
	Create(ctx context.Context, item *domain.ContentItem) error

	// Get returns the item by ID, or domain.ErrNotFound.
	Get(ctx context.Context, id string) (*domain.ContentItem, error)

	// Update persists the full item atomically, or domain.ErrNotFound when
	// the row no longer exists.
	Update(ctx context.Context, item *domain.ContentItem) error

	// ListByStatus returns items in the given status ordered by position
	// ascending, ties broken by creation time. A limit of 0 means no limit.
	ListByStatus(ctx context.Context, status domain.Status, limit int) ([]domain.ContentItem, error)

	// CountByStatus returns the number of items in the given status.
	CountByStatus(ctx context.Context, status domain.Status) (int64, error)
}
