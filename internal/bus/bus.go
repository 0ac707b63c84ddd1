// Package bus carries publish commands, checker ticks and outcome reports
// over Redis. Commands and reports ride pub/sub channels; the delayed,
// dedup-keyed checker reschedule is a sorted set written with ZADD NX so at
// most one check is ever pending per key.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/postpipe/internal/domain"
	"github.com/jonesrussell/postpipe/internal/logger"
)

// Channel and key names. Shared with any external consumer of reports.
const (
	CommandChannel = "postpipe:commands"
	SuccessChannel = "postpipe:reports:success"
	FailureChannel = "postpipe:reports:failure"

	scheduleSet = "postpipe:schedule"
)

const (
	defaultMoveInterval = time.Second
	connectionTimeout   = 2 * time.Second
)

// NewRedisClient creates a Redis client and verifies the connection.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if pingErr := client.Ping(pingCtx).Err(); pingErr != nil {
		return nil, fmt.Errorf("connect to Redis: %w", pingErr)
	}
	return client, nil
}

// CommandHandler consumes one inbound publish command.
type CommandHandler func(ctx context.Context, cmd domain.PublishCommand)

// CheckHandler consumes one due checker tick.
type CheckHandler func(ctx context.Context, key string)

// Bus is the command/report channel plus the delay queue that re-arms the
// checker. Start launches the subscriber and mover loops; both survive
// handler errors and stop via Stop or context cancellation.
type Bus struct {
	client redis.UniversalClient
	logger logger.Logger

	moveInterval time.Duration

	onCommand CommandHandler
	onCheck   CheckHandler

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// Option configures a Bus.
type Option func(*Bus)

// WithMoveInterval overrides how often the delay queue is drained. Tests
// use a short interval.
func WithMoveInterval(d time.Duration) Option {
	return func(b *Bus) { b.moveInterval = d }
}

// New creates a bus on an existing Redis client.
func New(client redis.UniversalClient, log logger.Logger, opts ...Option) *Bus {
	b := &Bus{
		client:       client,
		logger:       log,
		moveInterval: defaultMoveInterval,
		stopChan:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// OnCommand sets the handler for inbound publish commands. Must be called
// before Start.
func (b *Bus) OnCommand(h CommandHandler) { b.onCommand = h }

// OnCheck sets the handler for due checker ticks. Must be called before
// Start.
func (b *Bus) OnCheck(h CheckHandler) { b.onCheck = h }

// Dispatch publishes a command. Fire-and-forget from the caller's view:
// delivery is at-least-once at best and duplicates are handled by the
// executor's idempotency check.
func (b *Bus) Dispatch(ctx context.Context, cmd domain.PublishCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	if err := b.client.Publish(ctx, CommandChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish command: %w", err)
	}
	return nil
}

// ScheduleCheck arms a delayed checker tick under the given dedup key.
// Returns false when a tick for that key is already pending, in which case
// nothing was added.
func (b *Bus) ScheduleCheck(ctx context.Context, key string, delay time.Duration) (bool, error) {
	due := time.Now().Add(delay).UnixMilli()
	added, err := b.client.ZAddNX(ctx, scheduleSet, redis.Z{
		Score:  float64(due),
		Member: key,
	}).Result()
	if err != nil {
		return false, fmt.Errorf("schedule check: %w", err)
	}
	return added > 0, nil
}

// ReportSuccess publishes a success report. Reports are fire-and-forget
// notifications; callers log and move on when delivery fails.
func (b *Bus) ReportSuccess(ctx context.Context, report domain.Report) error {
	return b.publishReport(ctx, SuccessChannel, report)
}

// ReportFailure publishes a failure report.
func (b *Bus) ReportFailure(ctx context.Context, report domain.Report) error {
	return b.publishReport(ctx, FailureChannel, report)
}

func (b *Bus) publishReport(ctx context.Context, channel string, report domain.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish report: %w", err)
	}
	return nil
}

// Start launches the command subscriber and the delay-queue mover.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()

	pubsub := b.client.Subscribe(ctx, CommandChannel)

	b.wg.Add(1)
	go b.runSubscriber(ctx, pubsub)

	b.wg.Add(1)
	go b.runMover(ctx)

	b.logger.Info("bus started",
		logger.String("command_channel", CommandChannel),
		logger.Duration("move_interval", b.moveInterval))
}

// Stop shuts down both loops and waits for them.
func (b *Bus) Stop() {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	close(b.stopChan)
	b.wg.Wait()
	b.logger.Info("bus stopped")
}

func (b *Bus) runSubscriber(ctx context.Context, pubsub *redis.PubSub) {
	defer b.wg.Done()
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.handleCommand(ctx, msg.Payload)
		case <-b.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bus) handleCommand(ctx context.Context, payload string) {
	var cmd domain.PublishCommand
	if err := json.Unmarshal([]byte(payload), &cmd); err != nil {
		b.logger.Error("discarding malformed command",
			logger.String("payload", payload),
			logger.Error(err))
		return
	}
	if b.onCommand == nil {
		b.logger.Warn("no command handler registered",
			logger.String("item_id", cmd.ItemID))
		return
	}
	b.onCommand(ctx, cmd)
}

// runMover drains due entries from the schedule set and invokes the check
// handler for each. ZREM before invoking keeps redelivery bounded when
// multiple movers run.
func (b *Bus) runMover(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.moveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.moveDue(ctx)
		case <-b.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bus) moveDue(ctx context.Context) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	keys, err := b.client.ZRangeByScore(ctx, scheduleSet, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		b.logger.Error("failed to read schedule set", logger.Error(err))
		return
	}

	for _, key := range keys {
		removed, remErr := b.client.ZRem(ctx, scheduleSet, key).Result()
		if remErr != nil {
			b.logger.Error("failed to claim scheduled check",
				logger.String("key", key),
				logger.Error(remErr))
			continue
		}
		if removed == 0 {
			// Another mover claimed it first.
			continue
		}
		if b.onCheck != nil {
			b.onCheck(ctx, key)
		}
	}
}
