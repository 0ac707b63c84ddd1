// Package scheduler implements the self-rescheduling queue checker.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jonesrussell/postpipe/internal/domain"
	"github.com/jonesrussell/postpipe/internal/logger"
	"github.com/jonesrussell/postpipe/internal/metrics"
)

// CheckKey is the dedup key for the checker's reschedule request. One key
// means at most one pending check for the whole pipeline.
const CheckKey = "publish:check"

// DefaultCheckInterval is how long the checker waits between ticks.
const DefaultCheckInterval = time.Hour

// Queue is the slice of the queue manager the checker needs.
type Queue interface {
	NextInQueue(ctx context.Context) (*domain.ContentItem, error)
	Depth(ctx context.Context) (int64, error)
}

// Dispatcher hands work to the external command/delay mechanism.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd domain.PublishCommand) error
	ScheduleCheck(ctx context.Context, key string, delay time.Duration) (bool, error)
}

// Checker polls the queue once per invocation and re-arms itself. It is not
// a thread: each RunOnce is triggered by the dispatcher's delay mechanism
// and always schedules the next tick, even when every other step fails.
// That reschedule is the only thing keeping the queue alive.
type Checker struct {
	queue      Queue
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	logger     logger.Logger
	interval   time.Duration
	enabled    atomic.Bool
}

// NewChecker creates a checker. The enabled flag can be flipped at runtime;
// a disabled checker keeps rescheduling so re-enablement is picked up on
// the next tick without outside help.
func NewChecker(q Queue, d Dispatcher, m *metrics.Metrics, interval time.Duration, enabled bool, log logger.Logger) *Checker {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	c := &Checker{
		queue:      q,
		dispatcher: d,
		metrics:    m,
		logger:     log,
		interval:   interval,
	}
	c.enabled.Store(enabled)
	return c
}

// Enable turns dispatching on.
func (c *Checker) Enable() { c.enabled.Store(true) }

// Disable stops new dispatches. In-flight publishes run to completion and
// the reschedule loop keeps ticking.
func (c *Checker) Disable() { c.enabled.Store(false) }

// Enabled reports whether the checker dispatches work.
func (c *Checker) Enabled() bool { return c.enabled.Load() }

// RunOnce performs one tick: pick the next queued item, dispatch a publish
// command for it, and re-arm. The reschedule is deferred and panic-guarded
// so no failure in the tick body can terminate the loop.
func (c *Checker) RunOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("checker tick panicked",
				logger.Any("panic", r),
				logger.Stack())
		}
		c.reschedule(ctx)
	}()

	c.metrics.CheckerTicks.Inc()

	if depth, err := c.queue.Depth(ctx); err == nil {
		c.metrics.QueueDepth.Set(float64(depth))
	}

	if !c.enabled.Load() {
		c.logger.Debug("pipeline disabled, skipping check")
		return
	}

	item, err := c.queue.NextInQueue(ctx)
	if err != nil {
		c.logger.Error("failed to read queue head", logger.Error(err))
		return
	}
	if item == nil {
		c.logger.Debug("queue empty")
		return
	}

	// Fire-and-forget: the executor reports the outcome; the checker does
	// not wait for the publish before re-arming.
	if err := c.dispatcher.Dispatch(ctx, domain.NewPublishCommand(item.ID)); err != nil {
		c.logger.Error("failed to dispatch publish command",
			logger.String("item_id", item.ID),
			logger.Error(err))
		return
	}

	c.logger.Info("dispatched publish command",
		logger.String("item_id", item.ID),
		logger.String("platform", item.Platform))
}

func (c *Checker) reschedule(ctx context.Context) {
	added, err := c.dispatcher.ScheduleCheck(ctx, CheckKey, c.interval)
	if err != nil {
		c.logger.Error("failed to reschedule checker", logger.Error(err))
		return
	}
	c.metrics.Reschedules.Inc()
	if !added {
		c.logger.Debug("check already pending, reschedule skipped")
	}
}

// Seed arms the first tick immediately. The dedup key makes this safe when
// a check is already pending from a previous run.
func (c *Checker) Seed(ctx context.Context) {
	if _, err := c.dispatcher.ScheduleCheck(ctx, CheckKey, 0); err != nil {
		c.logger.Error("failed to seed checker", logger.Error(err))
	}
}

// Interval returns the configured tick interval.
func (c *Checker) Interval() time.Duration { return c.interval }
