// Package domain contains the core domain model for the publishing pipeline.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors surfaced by queue and store operations.
var (
	// ErrNotFound is returned when a content item does not exist in the store.
	ErrNotFound = errors.New("content item not found")

	// ErrInvalidTransition is returned when enqueuing an item that is not
	// draft or failed.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotQueued is returned by dequeue/reorder on an item that is not queued.
	ErrNotQueued = errors.New("content item is not queued")

	// ErrInvalidPosition is returned when a queue position is below 1.
	ErrInvalidPosition = errors.New("queue position must be at least 1")
)

// Status represents the lifecycle state of a content item.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusQueued    Status = "queued"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusQueued, StatusPublished, StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether the pipeline will take no further action on an
// item in this status. External tooling may still move a failed item back
// to draft.
func (s Status) Terminal() bool {
	return s == StatusPublished || s == StatusFailed
}

// Metadata holds platform-specific rendering hints. It is opaque to the
// pipeline and passed through to the provider unchanged. Stored as JSONB.
type Metadata map[string]string

// Value implements driver.Valuer for JSONB columns.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for JSONB columns.
func (m *Metadata) Scan(src any) error {
	if src == nil {
		*m = Metadata{}
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("metadata: unsupported scan type %T", src)
	}
	return json.Unmarshal(b, m)
}

// ContentItem is the unit being published.
//
// Position is set iff Status == StatusQueued; the transition methods below
// are the only mutators and maintain that invariant. Positions are not
// guaranteed unique (concurrent enqueues can race); the queue orders by
// position then creation time so duplicates stay deterministic.
type ContentItem struct {
	ID             string     `db:"id"               json:"id"`
	Platform       string     `db:"platform"         json:"platform"`
	Title          string     `db:"title"            json:"title"`
	Body           string     `db:"body"             json:"body"`
	Metadata       Metadata   `db:"metadata"         json:"metadata,omitempty"`
	Status         Status     `db:"status"           json:"status"`
	Position       *int       `db:"queue_position"   json:"position,omitempty"`
	RetryCount     int        `db:"retry_count"      json:"retry_count"`
	LastError      *string    `db:"last_error"       json:"last_error,omitempty"`
	PlatformPostID *string    `db:"platform_post_id" json:"platform_post_id,omitempty"`
	PublishedAt    *time.Time `db:"published_at"     json:"published_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at"       json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"       json:"updated_at"`
}

// NewContentItem creates a draft with a fresh ID. Platform names the
// provider that will eventually publish the item.
func NewContentItem(platform, title, body string, metadata Metadata) *ContentItem {
	now := time.Now().UTC()
	return &ContentItem{
		ID:        uuid.NewString(),
		Platform:  platform,
		Title:     title,
		Body:      body,
		Metadata:  metadata,
		Status:    StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Enqueue moves a draft or failed item into the queue at the given position.
func (c *ContentItem) Enqueue(position int) error {
	if c.Status != StatusDraft && c.Status != StatusFailed {
		return fmt.Errorf("%w: cannot enqueue item in status %q", ErrInvalidTransition, c.Status)
	}
	if position < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidPosition, position)
	}
	c.Status = StatusQueued
	c.Position = &position
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// Dequeue moves a queued item back to draft and clears its position.
func (c *ContentItem) Dequeue() error {
	if c.Status != StatusQueued {
		return fmt.Errorf("%w: status is %q", ErrNotQueued, c.Status)
	}
	c.Status = StatusDraft
	c.Position = nil
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// SetPosition updates the position of a queued item. Sibling positions are
// not renormalized; ties are allowed and broken by creation time.
func (c *ContentItem) SetPosition(position int) error {
	if c.Status != StatusQueued {
		return fmt.Errorf("%w: status is %q", ErrNotQueued, c.Status)
	}
	if position < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidPosition, position)
	}
	c.Position = &position
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// RecordSuccess applies the published transition after a successful
// provider call. Published is terminal for the pipeline.
func (c *ContentItem) RecordSuccess(postID, postURL string) {
	now := time.Now().UTC()
	c.Status = StatusPublished
	c.Position = nil
	c.PlatformPostID = &postID
	c.PublishedAt = &now
	c.UpdatedAt = now
	if postURL != "" {
		if c.Metadata == nil {
			c.Metadata = Metadata{}
		}
		c.Metadata["post_url"] = postURL
	}
}

// RecordFailure increments the retry counter and records the error. Once
// the counter reaches maxRetries the item transitions to failed, which is
// terminal for the pipeline. Returns true when the failed transition was
// applied.
func (c *ContentItem) RecordFailure(message string, maxRetries int) bool {
	c.RetryCount++
	c.LastError = &message
	c.UpdatedAt = time.Now().UTC()
	if c.RetryCount >= maxRetries {
		c.Status = StatusFailed
		c.Position = nil
		return true
	}
	return false
}
