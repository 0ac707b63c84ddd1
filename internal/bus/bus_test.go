package bus_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/postpipe/internal/bus"
	"github.com/jonesrussell/postpipe/internal/domain"
	"github.com/jonesrussell/postpipe/internal/logger"
)

func newTestBus(t *testing.T) (*bus.Bus, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return bus.New(client, logger.NewNopLogger(), bus.WithMoveInterval(10*time.Millisecond)), mr
}

func TestBus_DispatchDeliversCommand(t *testing.T) {
	b, _ := newTestBus(t)
	ctx := context.Background()

	received := make(chan domain.PublishCommand, 1)
	b.OnCommand(func(_ context.Context, cmd domain.PublishCommand) {
		received <- cmd
	})

	b.Start(ctx)
	defer b.Stop()

	// Give the subscriber a moment to attach before publishing.
	time.Sleep(50 * time.Millisecond)

	if err := b.Dispatch(ctx, domain.NewPublishCommand("item-1")); err != nil {
		t.Fatalf("Dispatch() unexpected error: %v", err)
	}

	select {
	case cmd := <-received:
		if cmd.ItemID != "item-1" {
			t.Errorf("ItemID = %s, want item-1", cmd.ItemID)
		}
		if cmd.ItemType != domain.ItemTypeContent {
			t.Errorf("ItemType = %s, want %s", cmd.ItemType, domain.ItemTypeContent)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command not delivered")
	}
}

func TestBus_ScheduleCheckDeduplicates(t *testing.T) {
	b, _ := newTestBus(t)
	ctx := context.Background()

	added, err := b.ScheduleCheck(ctx, "check", time.Hour)
	if err != nil {
		t.Fatalf("ScheduleCheck() unexpected error: %v", err)
	}
	if !added {
		t.Fatal("first ScheduleCheck() should add the key")
	}

	added, err = b.ScheduleCheck(ctx, "check", time.Minute)
	if err != nil {
		t.Fatalf("ScheduleCheck() unexpected error: %v", err)
	}
	if added {
		t.Error("second ScheduleCheck() should skip: a check is already pending")
	}
}

func TestBus_MoverFiresDueChecks(t *testing.T) {
	b, mr := newTestBus(t)
	ctx := context.Background()

	var mu sync.Mutex
	fired := 0
	b.OnCheck(func(_ context.Context, key string) {
		mu.Lock()
		defer mu.Unlock()
		if key != "check" {
			t.Errorf("key = %s, want check", key)
		}
		fired++
	})

	if _, err := b.ScheduleCheck(ctx, "check", 0); err != nil {
		t.Fatalf("ScheduleCheck() unexpected error: %v", err)
	}

	b.Start(ctx)
	defer b.Stop()

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := fired
		mu.Unlock()
		if n >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("due check never fired")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// The key was removed, so it must fire exactly once.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if fired != 1 {
		t.Errorf("fired = %d, want 1", fired)
	}
	_ = mr // keep redis alive until assertions complete
}

func TestBus_FutureCheckNotFiredEarly(t *testing.T) {
	b, _ := newTestBus(t)
	ctx := context.Background()

	fired := make(chan string, 1)
	b.OnCheck(func(_ context.Context, key string) { fired <- key })

	if _, err := b.ScheduleCheck(ctx, "check", time.Hour); err != nil {
		t.Fatalf("ScheduleCheck() unexpected error: %v", err)
	}

	b.Start(ctx)
	defer b.Stop()

	select {
	case <-fired:
		t.Fatal("check fired before its due time")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBus_ReportsPublishToChannels(t *testing.T) {
	b, _ := newTestBus(t)
	ctx := context.Background()

	// miniredis counts subscribers; with none, Publish still succeeds.
	err := b.ReportSuccess(ctx, domain.Report{
		ItemType:   domain.ItemTypeContent,
		ItemID:     "item-1",
		ProviderID: "post-9",
	})
	if err != nil {
		t.Errorf("ReportSuccess() unexpected error: %v", err)
	}

	err = b.ReportFailure(ctx, domain.Report{
		ItemType:   domain.ItemTypeContent,
		ItemID:     "item-1",
		Error:      "boom",
		RetryCount: 1,
	})
	if err != nil {
		t.Errorf("ReportFailure() unexpected error: %v", err)
	}
}
