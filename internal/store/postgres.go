package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/jonesrussell/postpipe/internal/domain"
)

const (
	// DefaultMaxOpenConns is the default maximum number of open connections
	DefaultMaxOpenConns = 25

	// DefaultMaxIdleConns is the default maximum number of idle connections
	DefaultMaxIdleConns = 5

	// DefaultConnMaxLifetime is the default maximum lifetime of a connection
	DefaultConnMaxLifetime = 5 * time.Minute

	// DefaultPingTimeout is the default timeout for pinging the database
	DefaultPingTimeout = 5 * time.Second
)

// contentSelectList is the column list for SELECT on content_items (single
// source for schema changes).
const contentSelectList = `id, platform, title, body, metadata, status, queue_position,
		retry_count, last_error, platform_post_id, published_at,
		created_at, updated_at`

// PostgresConfig holds database connection settings.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// NewPostgresConnection creates a pooled PostgreSQL connection.
func NewPostgresConnection(cfg PostgresConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), DefaultPingTimeout)
	defer cancel()

	if pingErr := db.PingContext(ctx); pingErr != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	return db, nil
}

// PostgresStore implements Store on top of PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates a new Postgres-backed store.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Ping verifies the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Create inserts a new content item.
func (s *PostgresStore) Create(ctx context.Context, item *domain.ContentItem) error {
	query := `
		INSERT INTO content_items (
			id, platform, title, body, metadata, status, queue_position,
			retry_count, last_error, platform_post_id, published_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := s.db.ExecContext(ctx, query,
		item.ID, item.Platform, item.Title, item.Body, item.Metadata,
		item.Status, item.Position, item.RetryCount, item.LastError,
		item.PlatformPostID, item.PublishedAt, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create content item: %w", err)
	}
	return nil
}

// Get retrieves a content item by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.ContentItem, error) {
	query := `SELECT ` + contentSelectList + ` FROM content_items WHERE id = $1`

	var item domain.ContentItem
	err := s.db.GetContext(ctx, &item, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get content item: %w", err)
	}
	return &item, nil
}

// Update writes the full item in a single statement so status, counters and
// timestamps can never be persisted separately.
func (s *PostgresStore) Update(ctx context.Context, item *domain.ContentItem) error {
	query := `
		UPDATE content_items
		SET platform = $2,
		    title = $3,
		    body = $4,
		    metadata = $5,
		    status = $6,
		    queue_position = $7,
		    retry_count = $8,
		    last_error = $9,
		    platform_post_id = $10,
		    published_at = $11,
		    updated_at = $12
		WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query,
		item.ID, item.Platform, item.Title, item.Body, item.Metadata,
		item.Status, item.Position, item.RetryCount, item.LastError,
		item.PlatformPostID, item.PublishedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update content item: %w", err)
	}

	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("get affected rows: %w", rowsErr)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByStatus returns items in the given status ordered by position, with
// creation time as the deterministic tie-break for duplicate positions.
func (s *PostgresStore) ListByStatus(ctx context.Context, status domain.Status, limit int) ([]domain.ContentItem, error) {
	query := `SELECT ` + contentSelectList + `
		FROM content_items
		WHERE status = $1
		ORDER BY queue_position ASC NULLS LAST, created_at ASC`

	args := []any{status}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	items := []domain.ContentItem{}
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list content items: %w", err)
	}
	return items, nil
}

// CountByStatus returns the number of items in the given status.
func (s *PostgresStore) CountByStatus(ctx context.Context, status domain.Status) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM content_items WHERE status = $1`, status)
	if err != nil {
		return 0, fmt.Errorf("count content items: %w", err)
	}
	return count, nil
}
