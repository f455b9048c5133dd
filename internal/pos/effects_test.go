package pos

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tokonova/backend/internal/domain"
	"tokonova/backend/internal/store/memory"
)

func TestDispatcherRunsQueuedTasks(t *testing.T) {
	d := NewDispatcher(8)

	var ran atomic.Int64
	for i := 0; i < 5; i++ {
		d.Enqueue(func(context.Context) { ran.Add(1) })
	}
	d.Close()

	if got := ran.Load(); got != 5 {
		t.Fatalf("expected 5 tasks to run, got %d", got)
	}
}

func TestDispatcherCloseIsIdempotent(t *testing.T) {
	d := NewDispatcher(1)
	d.Close()
	d.Close()
}

func TestDispatcherEnqueueAfterCloseDropsTask(t *testing.T) {
	d := NewDispatcher(4)
	d.Close()

	var ran atomic.Int64
	// A handler can outlive shutdown; a late enqueue must drop, not panic.
	d.Enqueue(func(context.Context) { ran.Add(1) })

	if got := ran.Load(); got != 0 {
		t.Fatalf("expected task dropped after close, ran %d", got)
	}
}

func TestDispatcherEnqueueDuringCloseDoesNotPanic(t *testing.T) {
	d := NewDispatcher(2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				d.Enqueue(func(context.Context) {})
			}
		}()
	}
	d.Close()
	wg.Wait()
}

func TestNotifyDeliversThroughDispatcher(t *testing.T) {
	repo := memory.NewSeeded()
	d := NewDispatcher(8)

	received := make(chan Notification, 1)
	svc := New(repo, nil, time.Second, d, notifierFunc(func(_ context.Context, n Notification) error {
		received <- n
		return nil
	}))

	sale, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		Items: []domain.SaleItemInput{{ProductID: "prod-espresso", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	d.Close()

	select {
	case n := <-received:
		if n.Kind != "sale.completed" || n.EntityID != sale.ID {
			t.Fatalf("unexpected notification %+v", n)
		}
	default:
		t.Fatalf("expected a sale.completed notification")
	}
}

type notifierFunc func(ctx context.Context, n Notification) error

func (f notifierFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }
