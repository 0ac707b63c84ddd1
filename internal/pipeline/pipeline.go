// Package pipeline wires the checker, bus and executor into the publishing
// pipeline and exposes queue operations to callers.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonesrussell/postpipe/internal/bus"
	"github.com/jonesrussell/postpipe/internal/domain"
	"github.com/jonesrussell/postpipe/internal/executor"
	"github.com/jonesrussell/postpipe/internal/logger"
	"github.com/jonesrussell/postpipe/internal/queue"
	"github.com/jonesrussell/postpipe/internal/scheduler"
	"github.com/jonesrussell/postpipe/internal/store"
)

// Pipeline is the composition root for the publishing flow:
// checker tick -> command dispatch -> executor -> report. Queue operations
// may be called at any time alongside the running loop.
type Pipeline struct {
	queue    *queue.Manager
	executor *executor.Executor
	checker  *scheduler.Checker
	bus      *bus.Bus
	store    store.Store
	logger   logger.Logger

	started bool
	mu      sync.Mutex
}

// New wires the components together. Handlers are registered here so the
// bus delivers ticks to the checker and commands to the executor.
func New(q *queue.Manager, e *executor.Executor, c *scheduler.Checker, b *bus.Bus, s store.Store, log logger.Logger) *Pipeline {
	p := &Pipeline{
		queue:    q,
		executor: e,
		checker:  c,
		bus:      b,
		store:    s,
		logger:   log,
	}

	b.OnCheck(func(ctx context.Context, _ string) {
		c.RunOnce(ctx)
	})
	b.OnCommand(func(ctx context.Context, cmd domain.PublishCommand) {
		if cmd.ItemType != domain.ItemTypeContent {
			log.Warn("ignoring command for unknown item type",
				logger.String("item_type", cmd.ItemType))
			return
		}
		e.Execute(ctx, cmd)
	})

	return p
}

// Start launches the bus loops and seeds the first checker tick. The seed
// is dedup-keyed, so a check left pending by a previous process is kept
// rather than doubled.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.bus.Start(ctx)
	p.checker.Seed(ctx)

	p.logger.Info("pipeline started",
		logger.Bool("enabled", p.checker.Enabled()),
		logger.Duration("check_interval", p.checker.Interval()))
}

// Stop shuts the bus down and waits for in-flight work. An executor call
// already running completes; disabling only stops new dispatch.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.bus.Stop()
	p.logger.Info("pipeline stopped")
}

// Queue exposes queue-management operations to callers.
func (p *Pipeline) Queue() *queue.Manager { return p.queue }

// CreateDraft stores a new draft item. Drafts sit outside the queue until
// explicitly enqueued.
func (p *Pipeline) CreateDraft(ctx context.Context, platform, title, body string, metadata domain.Metadata) (*domain.ContentItem, error) {
	item := domain.NewContentItem(platform, title, body, metadata)
	if err := p.store.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("create draft: %w", err)
	}
	p.logger.Info("draft created",
		logger.String("item_id", item.ID),
		logger.String("platform", platform))
	return item, nil
}

// Enable resumes dispatching from the next tick.
func (p *Pipeline) Enable() {
	p.checker.Enable()
	p.logger.Info("pipeline enabled")
}

// Disable stops new dispatches while the checker loop keeps ticking.
func (p *Pipeline) Disable() {
	p.checker.Disable()
	p.logger.Info("pipeline disabled")
}

// Enabled reports the current administrative state.
func (p *Pipeline) Enabled() bool { return p.checker.Enabled() }

// Publish dispatches a publish command for the item immediately, bypassing
// the checker's cadence. The executor applies the same transitions either
// way.
func (p *Pipeline) Publish(ctx context.Context, itemID string) error {
	if err := p.bus.Dispatch(ctx, domain.NewPublishCommand(itemID)); err != nil {
		return fmt.Errorf("dispatch publish command: %w", err)
	}
	p.logger.Info("manual publish dispatched", logger.String("item_id", itemID))
	return nil
}

// Stats summarizes item counts by status.
type Stats struct {
	Draft     int64 `json:"draft"`
	Queued    int64 `json:"queued"`
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
	Enabled   bool  `json:"enabled"`
}

// Stats returns current pipeline statistics.
func (p *Pipeline) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Enabled: p.checker.Enabled()}

	counts := []struct {
		status domain.Status
		target *int64
	}{
		{domain.StatusDraft, &stats.Draft},
		{domain.StatusQueued, &stats.Queued},
		{domain.StatusPublished, &stats.Published},
		{domain.StatusFailed, &stats.Failed},
	}
	for _, c := range counts {
		count, err := p.store.CountByStatus(ctx, c.status)
		if err != nil {
			return nil, fmt.Errorf("count %s items: %w", c.status, err)
		}
		*c.target = count
	}
	return stats, nil
}
