package pos

import (
	"context"
	"log"
	"sync"
	"time"
)

// Notification is a post-commit event for external consumers (receipt
// printers, messaging). Delivery is best-effort and never blocks or fails a
// committed sale.
type Notification struct {
	Kind        string
	EntityID    string
	AmountCents int64
}

type NotificationSink interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotificationSink is the default sink when no external integration is
// configured.
type LogNotificationSink struct{}

func (LogNotificationSink) Notify(_ context.Context, n Notification) error {
	log.Printf("[notify] %s entity=%s amount=%d", n.Kind, n.EntityID, n.AmountCents)
	return nil
}

// Dispatcher runs post-commit side effects on a background goroutine. Tasks
// are queued after the owning transaction has committed; a full queue drops
// the task with a warning rather than stalling the request path.
type Dispatcher struct {
	mu     sync.Mutex
	closed bool
	tasks  chan func(context.Context)
	once   sync.Once
	done   chan struct{}
}

func NewDispatcher(buffer int) *Dispatcher {
	if buffer < 1 {
		buffer = 64
	}
	d := &Dispatcher{
		tasks: make(chan func(context.Context), buffer),
		done:  make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for task := range d.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		task(ctx)
		cancel()
	}
}

// Enqueue never blocks and never panics: a full queue or a closed dispatcher
// drops the task with a warning. A request handler may still be finishing a
// committed sale while shutdown is closing the dispatcher, and that sale must
// not be harmed by its side effects.
func (d *Dispatcher) Enqueue(task func(context.Context)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		log.Printf("[effects] WARN: dispatcher closed, dropping task")
		return
	}
	select {
	case d.tasks <- task:
	default:
		log.Printf("[effects] WARN: queue full, dropping task")
	}
}

// Close stops accepting tasks and waits for queued ones to drain.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.tasks)
		d.mu.Unlock()
	})
	<-d.done
}
