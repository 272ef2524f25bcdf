package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// MaxHashPrefix is the longest token-hash prefix an event may carry.
const MaxHashPrefix = 8

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards events when the queue is full instead of blocking the
	// caller. Events for which Critical reports true always block.
	DropIfFull bool
	// Critical marks event types that must not be discarded under backpressure.
	Critical func(eventType string) bool
	// OnDrop runs synchronously for every discarded event with the running total.
	OnDrop func(event Event, total uint64)
}

// Dispatcher asynchronously forwards redacted audit events to a sink.
type Dispatcher struct {
	cfg       Config
	sink      Sink
	queue     chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts the delivery goroutine. It returns nil when cfg.Enabled is
// false; every method is safe on a nil Dispatcher.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:   cfg,
		sink:  sink,
		queue: make(chan Event, cfg.BufferSize),
		done:  make(chan struct{}),
	}

	d.wg.Add(1)
	go d.deliver()

	return d
}

func (d *Dispatcher) deliver() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		case <-d.done:
			// Drain what was accepted before Close.
			for {
				select {
				case event := <-d.queue:
					d.sink.Emit(context.Background(), event)
				default:
					return
				}
			}
		}
	}
}

// Emit redacts event and queues it for delivery. An event abandoned because ctx
// ended or the queue was full counts as dropped.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	event = Redact(event)

	if d.cfg.DropIfFull && !d.critical(event.EventType) {
		select {
		case d.queue <- event:
		case <-d.done:
		default:
			d.drop(event)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.drop(event)
	case <-d.done:
	}
}

func (d *Dispatcher) critical(eventType string) bool {
	return d.cfg.Critical != nil && d.cfg.Critical(eventType)
}

func (d *Dispatcher) drop(event Event) {
	total := d.dropped.Add(1)
	if d.cfg.OnDrop != nil {
		d.cfg.OnDrop(event, total)
	}
}

// Close stops intake and waits until queued events reach the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped reports how many events never reached the sink.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Redact clips HashPrefix to MaxHashPrefix and masks metadata values shaped like a
// plaintext token or a full token hash (64 hex characters). The metadata map is
// copied so the caller may reuse its own.
func Redact(event Event) Event {
	if len(event.HashPrefix) > MaxHashPrefix {
		event.HashPrefix = event.HashPrefix[:MaxHashPrefix]
	}
	if len(event.Metadata) == 0 {
		return event
	}

	md := make(map[string]string, len(event.Metadata))
	for k, v := range event.Metadata {
		if isTokenShaped(v) {
			v = v[:MaxHashPrefix]
		}
		md[k] = v
	}
	event.Metadata = md
	return event
}

func isTokenShaped(v string) bool {
	if len(v) != 64 {
		return false
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
