// Package executor performs one publish attempt per command and applies the
// resulting state transition.
package executor

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonesrussell/postpipe/internal/domain"
	"github.com/jonesrussell/postpipe/internal/logger"
	"github.com/jonesrussell/postpipe/internal/metrics"
	"github.com/jonesrussell/postpipe/internal/provider"
	"github.com/jonesrussell/postpipe/internal/store"
)

const (
	// DefaultMaxRetries is the failed-attempt threshold before an item goes
	// to the failed status.
	DefaultMaxRetries = 3

	defaultPublishTimeout = 30 * time.Second

	errNotFound   = "not found"
	errNoProvider = "no provider configured for platform"
)

// Reporter delivers outcome notifications. Delivery is fire-and-forget: the
// executor logs a failed delivery and moves on, never retries it.
type Reporter interface {
	ReportSuccess(ctx context.Context, report domain.Report) error
	ReportFailure(ctx context.Context, report domain.Report) error
}

// Executor consumes publish commands. Safe for concurrent use across
// different items; a duplicate or late command for an already published
// item is skipped by the idempotency check.
type Executor struct {
	store      store.Store
	registry   *provider.Registry
	reporter   Reporter
	metrics    *metrics.Metrics
	logger     logger.Logger
	tracer     trace.Tracer
	maxRetries int

	publishTimeout time.Duration
}

// Config holds executor options.
type Config struct {
	MaxRetries     int
	PublishTimeout time.Duration
}

// New creates an executor.
func New(s store.Store, registry *provider.Registry, reporter Reporter, m *metrics.Metrics, cfg Config, log logger.Logger) *Executor {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	return &Executor{
		store:          s,
		registry:       registry,
		reporter:       reporter,
		metrics:        m,
		logger:         log,
		tracer:         otel.Tracer("publish-executor"),
		maxRetries:     cfg.MaxRetries,
		publishTimeout: cfg.PublishTimeout,
	}
}

// Execute performs one publish attempt for the referenced item. It never
// returns an error: every outcome is either a state transition plus report,
// a reported resolution failure, or a silent idempotent skip.
func (e *Executor) Execute(ctx context.Context, cmd domain.PublishCommand) {
	ctx, span := e.tracer.Start(ctx, "executor.publish",
		trace.WithAttributes(
			attribute.String("item_id", cmd.ItemID),
			attribute.String("item_type", cmd.ItemType),
		))
	defer span.End()

	item, err := e.store.Get(ctx, cmd.ItemID)
	if err != nil {
		// Permanent for this invocation: report, do not touch the store.
		message := errNotFound
		if !errors.Is(err, domain.ErrNotFound) {
			message = err.Error()
		}
		e.logger.Warn("publish command references unresolvable item",
			logger.String("item_id", cmd.ItemID),
			logger.Error(err))
		e.reportFailure(ctx, domain.Report{
			ItemType: cmd.ItemType,
			ItemID:   cmd.ItemID,
			Error:    message,
		})
		return
	}

	if item.Status == domain.StatusPublished {
		// Duplicate or late delivery after a success: skip silently, no
		// provider call and no report.
		e.logger.Debug("skipping already published item",
			logger.String("item_id", item.ID))
		return
	}

	p, ok := e.registry.Lookup(item.Platform)
	if !ok {
		e.logger.Warn("no provider for platform",
			logger.String("item_id", item.ID),
			logger.String("platform", item.Platform))
		e.reportFailure(ctx, domain.Report{
			ItemType: cmd.ItemType,
			ItemID:   item.ID,
			Error:    errNoProvider,
		})
		return
	}

	e.metrics.PublishAttempts.WithLabelValues(item.Platform).Inc()
	span.SetAttributes(attribute.String("platform", item.Platform))

	pubCtx, cancel := context.WithTimeout(ctx, e.publishTimeout)
	defer cancel()

	result, pubErr := p.Publish(pubCtx, item.Body, item.Metadata)
	if pubErr != nil {
		e.handleFailure(ctx, item, pubErr)
		return
	}

	item.RecordSuccess(result.ID, result.URL)
	if updErr := e.store.Update(ctx, item); updErr != nil {
		// The platform accepted the post; a stale row here is recovered by
		// the idempotency check on redelivery, so log and keep the success.
		e.logger.Error("failed to persist published item",
			logger.String("item_id", item.ID),
			logger.Error(updErr))
	}

	e.metrics.PublishSuccesses.WithLabelValues(item.Platform).Inc()
	e.logger.Info("content item published",
		logger.String("item_id", item.ID),
		logger.String("platform", item.Platform),
		logger.String("post_id", result.ID))

	if repErr := e.reporter.ReportSuccess(ctx, domain.Report{
		ItemType:   cmd.ItemType,
		ItemID:     item.ID,
		ProviderID: result.ID,
	}); repErr != nil {
		e.logger.Warn("failed to deliver success report",
			logger.String("item_id", item.ID),
			logger.Error(repErr))
	}
}

// handleFailure applies the retry/failed transition in one atomic update
// and reports the attempt. Every failed attempt is reported, not only the
// terminal one.
func (e *Executor) handleFailure(ctx context.Context, item *domain.ContentItem, pubErr error) {
	failed := item.RecordFailure(pubErr.Error(), e.maxRetries)

	if updErr := e.store.Update(ctx, item); updErr != nil {
		e.logger.Error("failed to persist publish failure",
			logger.String("item_id", item.ID),
			logger.Error(updErr))
	}

	e.metrics.PublishFailures.WithLabelValues(item.Platform).Inc()
	if failed {
		e.logger.Error("content item failed permanently",
			logger.String("item_id", item.ID),
			logger.String("platform", item.Platform),
			logger.Int("retry_count", item.RetryCount),
			logger.Error(pubErr))
	} else {
		e.logger.Warn("publish attempt failed, item stays queued",
			logger.String("item_id", item.ID),
			logger.String("platform", item.Platform),
			logger.Int("retry_count", item.RetryCount),
			logger.Error(pubErr))
	}

	e.reportFailure(ctx, domain.Report{
		ItemType:   domain.ItemTypeContent,
		ItemID:     item.ID,
		Error:      pubErr.Error(),
		RetryCount: item.RetryCount,
	})
}

func (e *Executor) reportFailure(ctx context.Context, report domain.Report) {
	if err := e.reporter.ReportFailure(ctx, report); err != nil {
		e.logger.Warn("failed to deliver failure report",
			logger.String("item_id", report.ItemID),
			logger.Error(err))
	}
}
