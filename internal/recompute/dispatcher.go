package recompute

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/valueboard/internal/model"
	"github.com/sells-group/valueboard/internal/resilience"
)

// EventKind identifies the write that triggered an event.
type EventKind string

const (
	EventQualityWritten EventKind = "quality_written"
	EventPriceWritten   EventKind = "price_written"
)

// Event is a write notification. Exactly one of Quality or Price is set,
// matching Kind.
type Event struct {
	Kind    EventKind
	Quality *model.QualityScore
	Price   *model.PriceRecord
}

// QualityEvent wraps a written quality score.
func QualityEvent(q *model.QualityScore) Event {
	return Event{Kind: EventQualityWritten, Quality: q}
}

// PriceEvent wraps a written price record.
func PriceEvent(p *model.PriceRecord) Event {
	return Event{Kind: EventPriceWritten, Price: p}
}

// Publisher accepts write events. Writers publish after their store write
// succeeds.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Handler processes events. Coordinator satisfies it.
type Handler interface {
	OnQualityScoreWritten(ctx context.Context, q *model.QualityScore) error
	OnPriceWritten(ctx context.Context, p *model.PriceRecord) error
}

// Handle routes ev to the matching Handler method.
func Handle(ctx context.Context, h Handler, ev Event) error {
	switch ev.Kind {
	case EventQualityWritten:
		return h.OnQualityScoreWritten(ctx, ev.Quality)
	case EventPriceWritten:
		return h.OnPriceWritten(ctx, ev.Price)
	default:
		return eris.Errorf("recompute: unknown event kind %q", ev.Kind)
	}
}

// Sync is a Publisher that handles events inline on the caller's goroutine.
type Sync struct {
	Handler Handler
}

// Publish handles ev immediately.
func (s Sync) Publish(ctx context.Context, ev Event) error {
	return Handle(ctx, s.Handler, ev)
}

// DispatcherConfig tunes a Dispatcher.
type DispatcherConfig struct {
	Workers   int
	QueueSize int
	Retry     resilience.RetryConfig
}

// Dispatcher delivers events to a Handler on a pool of workers. Failed
// handlers are retried; events may be handled more than once.
type Dispatcher struct {
	handler Handler
	cfg     DispatcherConfig
	events  chan Event
	log     *zap.Logger

	// done wakes publishers blocked on a full queue so Close can take mu.
	done      chan struct{}
	closeOnce sync.Once

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher creates a Dispatcher. Call Run to start the workers.
func NewDispatcher(h Handler, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}
	// Store failures are not HTTP errors; retry all of them.
	if cfg.Retry.ShouldRetry == nil {
		cfg.Retry.ShouldRetry = func(error) bool { return true }
	}
	if cfg.Retry.OnRetry == nil {
		cfg.Retry.OnRetry = resilience.RetryLogger("recompute", "handle_event")
	}
	return &Dispatcher{
		handler: h,
		cfg:     cfg,
		events:  make(chan Event, cfg.QueueSize),
		done:    make(chan struct{}),
		log:     zap.L().With(zap.String("component", "recompute.dispatcher")),
	}
}

// Publish enqueues ev, blocking while the queue is full until ctx is done
// or the dispatcher is closed.
func (d *Dispatcher) Publish(ctx context.Context, ev Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return eris.New("recompute: dispatcher closed")
	}
	select {
	case d.events <- ev:
		return nil
	case <-d.done:
		return eris.New("recompute: dispatcher closed")
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "recompute: publish")
	}
}

// Close stops accepting events. Workers drain the queue and Run returns.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.done) })
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.events)
}

// Run processes events until Close is called and the queue drains, or ctx
// is cancelled. Handler failures that exhaust retries are logged and the
// event is dropped.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.cfg.Workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case ev, ok := <-d.events:
					if !ok {
						return nil
					}
					d.deliver(gctx, ev)
				}
			}
		})
	}
	return g.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	err := resilience.Do(ctx, d.cfg.Retry, func(ctx context.Context) error {
		return Handle(ctx, d.handler, ev)
	})
	if err != nil {
		d.log.Error("event dropped after retries",
			zap.String("kind", string(ev.Kind)),
			zap.String("model_id", ev.modelID()),
			zap.Error(err),
		)
	}
}

func (ev Event) modelID() string {
	switch {
	case ev.Quality != nil:
		return ev.Quality.ModelID
	case ev.Price != nil:
		return ev.Price.ModelID
	}
	return ""
}
