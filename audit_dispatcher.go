package adminauth

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditDispatcher decouples the login/logout flows from the sink: flows
// enqueue and move on, a single worker delivers in order. Close drains
// whatever is queued before returning, so a test that closes the engine can
// assert on everything it emitted.
type auditDispatcher struct {
	sink       AuditSink
	dropIfFull bool

	queue chan AuditEvent
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup

	dropped atomic.Uint64
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	buffer := cfg.BufferSize
	if buffer <= 0 {
		buffer = 1
	}

	d := &auditDispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan AuditEvent, buffer),
		done:       make(chan struct{}),
	}
	d.wg.Add(1)
	go d.deliver()
	return d
}

func (d *auditDispatcher) deliver() {
	defer d.wg.Done()
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(event)
		case <-d.done:
			d.drain()
			return
		}
	}
}

// drain empties the queue after done closes. Emit stops accepting once done
// is closed, so this terminates.
func (d *auditDispatcher) drain() {
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(event)
		default:
			return
		}
	}
}

// Emit enqueues an event. In drop-if-full mode a saturated queue counts the
// event as dropped instead of stalling the authentication flow; otherwise
// the caller waits, bounded by its ctx.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil {
		return
	}
	select {
	case <-d.done:
		return
	default:
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.done:
	}
}

// Close stops the worker after draining queued events. Idempotent.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped reports how many events drop-if-full mode discarded.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, userID, email string, cause error, metadata func() map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: e.clock(),
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		IP:        clientIPFromContext(ctx),
		Success:   success,
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	if metadata != nil {
		event.Metadata = metadata()
	}

	e.audit.Emit(ctx, event)
}
