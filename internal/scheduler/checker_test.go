package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonesrussell/postpipe/internal/domain"
	"github.com/jonesrussell/postpipe/internal/logger"
	"github.com/jonesrussell/postpipe/internal/metrics"
	"github.com/jonesrussell/postpipe/internal/scheduler"
)

type fakeQueue struct {
	item *domain.ContentItem
	err  error
}

func (q *fakeQueue) NextInQueue(context.Context) (*domain.ContentItem, error) {
	return q.item, q.err
}

func (q *fakeQueue) Depth(context.Context) (int64, error) {
	if q.item != nil {
		return 1, nil
	}
	return 0, q.err
}

type panicQueue struct{}

func (panicQueue) NextInQueue(context.Context) (*domain.ContentItem, error) {
	panic("queue exploded")
}

func (panicQueue) Depth(context.Context) (int64, error) {
	return 0, nil
}

type fakeDispatcher struct {
	dispatched  []domain.PublishCommand
	dispatchErr error

	scheduled   []time.Duration
	scheduleErr error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, cmd domain.PublishCommand) error {
	d.dispatched = append(d.dispatched, cmd)
	return d.dispatchErr
}

func (d *fakeDispatcher) ScheduleCheck(_ context.Context, _ string, delay time.Duration) (bool, error) {
	d.scheduled = append(d.scheduled, delay)
	return true, d.scheduleErr
}

func newChecker(q scheduler.Queue, d scheduler.Dispatcher, enabled bool) *scheduler.Checker {
	return scheduler.NewChecker(q, d, metrics.NewUnregistered(), time.Minute, enabled, logger.NewNopLogger())
}

func TestChecker_DispatchesHeadAndReschedules(t *testing.T) {
	q := &fakeQueue{item: &domain.ContentItem{ID: "item-1", Platform: "mastodon", Status: domain.StatusQueued}}
	d := &fakeDispatcher{}

	newChecker(q, d, true).RunOnce(context.Background())

	if len(d.dispatched) != 1 {
		t.Fatalf("got %d dispatches, want 1", len(d.dispatched))
	}
	if d.dispatched[0].ItemID != "item-1" {
		t.Errorf("ItemID = %s, want item-1", d.dispatched[0].ItemID)
	}
	if len(d.scheduled) != 1 {
		t.Fatalf("got %d reschedules, want 1", len(d.scheduled))
	}
	if d.scheduled[0] != time.Minute {
		t.Errorf("reschedule delay = %v, want 1m", d.scheduled[0])
	}
}

func TestChecker_EmptyQueueStillReschedules(t *testing.T) {
	d := &fakeDispatcher{}

	newChecker(&fakeQueue{}, d, true).RunOnce(context.Background())

	if len(d.dispatched) != 0 {
		t.Errorf("got %d dispatches, want 0", len(d.dispatched))
	}
	if len(d.scheduled) != 1 {
		t.Errorf("got %d reschedules, want 1", len(d.scheduled))
	}
}

// Loop survival: a failing queue read must not prevent the reschedule.
func TestChecker_QueueErrorStillReschedules(t *testing.T) {
	q := &fakeQueue{err: errors.New("store down")}
	d := &fakeDispatcher{}

	newChecker(q, d, true).RunOnce(context.Background())

	if len(d.scheduled) != 1 {
		t.Fatalf("got %d reschedules, want exactly 1", len(d.scheduled))
	}
	if len(d.dispatched) != 0 {
		t.Errorf("got %d dispatches, want 0", len(d.dispatched))
	}
}

func TestChecker_DispatchErrorStillReschedules(t *testing.T) {
	q := &fakeQueue{item: &domain.ContentItem{ID: "item-1", Status: domain.StatusQueued}}
	d := &fakeDispatcher{dispatchErr: errors.New("bus down")}

	newChecker(q, d, true).RunOnce(context.Background())

	if len(d.scheduled) != 1 {
		t.Errorf("got %d reschedules, want 1", len(d.scheduled))
	}
}

func TestChecker_PanicStillReschedules(t *testing.T) {
	d := &fakeDispatcher{}

	newChecker(panicQueue{}, d, true).RunOnce(context.Background())

	if len(d.scheduled) != 1 {
		t.Errorf("got %d reschedules after panic, want 1", len(d.scheduled))
	}
}

func TestChecker_DisabledSkipsDispatchButReschedules(t *testing.T) {
	q := &fakeQueue{item: &domain.ContentItem{ID: "item-1", Status: domain.StatusQueued}}
	d := &fakeDispatcher{}

	c := newChecker(q, d, false)
	c.RunOnce(context.Background())

	if len(d.dispatched) != 0 {
		t.Errorf("disabled checker dispatched %d commands, want 0", len(d.dispatched))
	}
	if len(d.scheduled) != 1 {
		t.Errorf("got %d reschedules, want 1", len(d.scheduled))
	}

	// Re-enabling takes effect on the next tick with no outside help.
	c.Enable()
	c.RunOnce(context.Background())
	if len(d.dispatched) != 1 {
		t.Errorf("re-enabled checker dispatched %d commands, want 1", len(d.dispatched))
	}
}

func TestChecker_Seed(t *testing.T) {
	d := &fakeDispatcher{}
	c := newChecker(&fakeQueue{}, d, true)

	c.Seed(context.Background())

	if len(d.scheduled) != 1 {
		t.Fatalf("got %d schedules, want 1", len(d.scheduled))
	}
	if d.scheduled[0] != 0 {
		t.Errorf("seed delay = %v, want 0", d.scheduled[0])
	}
}
