package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// Dispatcher asynchronously forwards audit events to a sink. A nil
// Dispatcher is valid and drops everything, so callers never branch on
// whether auditing is enabled.
type Dispatcher struct {
	sink       Sink
	events     chan Event
	quit       chan struct{}
	dropIfFull bool

	worker  sync.WaitGroup
	stop    sync.Once
	closed  atomic.Bool
	dropped atomic.Uint64
}

func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	buffer := cfg.BufferSize
	if buffer <= 0 {
		buffer = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:       sink,
		events:     make(chan Event, buffer),
		quit:       make(chan struct{}),
		dropIfFull: cfg.DropIfFull,
	}
	d.worker.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.worker.Done()
	for {
		select {
		case event := <-d.events:
			d.sink.Emit(context.Background(), event)
		case <-d.quit:
			d.drain()
			return
		}
	}
}

// drain flushes whatever Emit managed to enqueue before Close flipped the
// closed flag. New events cannot arrive at this point.
func (d *Dispatcher) drain() {
	for {
		select {
		case event := <-d.events:
			d.sink.Emit(context.Background(), event)
		default:
			return
		}
	}
}

// Emit hands an event to the worker. Under DropIfFull a full buffer sheds
// the event and counts it; otherwise Emit blocks until there is room, the
// caller's context ends, or the dispatcher shuts down. A zero Timestamp is
// stamped here so sinks always see enqueue time.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull {
		select {
		case d.events <- event:
		case <-d.quit:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.events <- event:
	case <-ctx.Done():
	case <-d.quit:
	}
}

// Close drains buffered events into the sink and stops the worker.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.stop.Do(func() {
		d.closed.Store(true)
		close(d.quit)
		d.worker.Wait()
	})
}

// Dropped reports events shed because the buffer was full.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
