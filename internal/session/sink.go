package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/couchcryptid/flood-extent-service/internal/domain"
	"github.com/couchcryptid/flood-extent-service/internal/observability"
)

// CommandSink receives every command batch the session publishes.
type CommandSink interface {
	Publish(ctx context.Context, batch domain.CommandBatch) error
}

type namedSink struct {
	name string
	sink CommandSink
}

// MultiSink fans a batch out to several sinks. A failing sink is logged and
// counted; the others still receive the batch.
type MultiSink struct {
	sinks   []namedSink
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewMultiSink creates an empty fan-out sink.
func NewMultiSink(logger *slog.Logger, metrics *observability.Metrics) *MultiSink {
	return &MultiSink{logger: logger, metrics: metrics}
}

// Add registers sink under name. Sinks are called in the order they were added.
func (m *MultiSink) Add(name string, sink CommandSink) *MultiSink {
	m.sinks = append(m.sinks, namedSink{name: name, sink: sink})
	return m
}

// Publish delivers batch to every sink and returns the joined sink errors.
func (m *MultiSink) Publish(ctx context.Context, batch domain.CommandBatch) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.sink.Publish(ctx, batch); err != nil {
			m.metrics.SinkErrors.WithLabelValues(s.name).Inc()
			m.logger.Warn("command sink failed",
				"sink", s.name,
				"batch_id", batch.ID,
				"seq", batch.Seq,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

var (
	ErrSinkFull   = errors.New("sink queue full")
	ErrSinkClosed = errors.New("sink closed")
)

// AsyncSink delivers batches to a slow sink from its own goroutine, in the
// order they were queued. Publish never blocks: when the queue is full the
// batch is dropped and ErrSinkFull returned, leaving a gap in the sequence the
// consumer can detect.
type AsyncSink struct {
	name    string
	sink    CommandSink
	logger  *slog.Logger
	metrics *observability.Metrics

	mu     sync.RWMutex
	closed bool
	queue  chan domain.CommandBatch

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAsyncSink starts the delivery goroutine for sink. Close stops it.
func NewAsyncSink(name string, sink CommandSink, capacity int, logger *slog.Logger, metrics *observability.Metrics) *AsyncSink {
	ctx, cancel := context.WithCancel(context.Background())
	a := &AsyncSink{
		name:    name,
		sink:    sink,
		logger:  logger,
		metrics: metrics,
		queue:   make(chan domain.CommandBatch, max(capacity, 1)),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// Publish queues batch for delivery.
func (a *AsyncSink) Publish(_ context.Context, batch domain.CommandBatch) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return ErrSinkClosed
	}
	select {
	case a.queue <- batch:
		return nil
	default:
		return fmt.Errorf("batch %d: %w", batch.Seq, ErrSinkFull)
	}
}

// Close stops accepting batches and waits for the queue to drain. When ctx
// ends first, in-flight delivery is canceled and ctx.Err returned.
func (a *AsyncSink) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		a.cancel()
		return nil
	case <-ctx.Done():
		a.cancel()
		<-a.done
		return ctx.Err()
	}
}

func (a *AsyncSink) run() {
	defer close(a.done)
	for batch := range a.queue {
		if err := a.sink.Publish(a.ctx, batch); err != nil {
			a.metrics.SinkErrors.WithLabelValues(a.name).Inc()
			a.logger.Warn("command sink failed",
				"sink", a.name,
				"batch_id", batch.ID,
				"seq", batch.Seq,
				"error", err,
			)
		}
	}
}

// MemorySink keeps the most recent batches in a ring buffer so HTTP clients
// can poll for what they missed.
type MemorySink struct {
	mu    sync.Mutex
	buf   []domain.CommandBatch
	start int
	n     int
}

// NewMemorySink creates a ring buffer holding up to capacity batches.
func NewMemorySink(capacity int) *MemorySink {
	return &MemorySink{buf: make([]domain.CommandBatch, max(capacity, 1))}
}

func (m *MemorySink) Publish(_ context.Context, batch domain.CommandBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.n < len(m.buf) {
		m.buf[(m.start+m.n)%len(m.buf)] = batch
		m.n++
		return nil
	}
	m.buf[m.start] = batch
	m.start = (m.start + 1) % len(m.buf)
	return nil
}

// Since returns the buffered batches with a sequence number above seq, oldest
// first. complete is false when batches after seq were already evicted, in
// which case the caller should repaint from a full render.
func (m *MemorySink) Since(seq uint64) (batches []domain.CommandBatch, complete bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	batches = []domain.CommandBatch{}
	complete = true
	for i := range m.n {
		b := m.buf[(m.start+i)%len(m.buf)]
		if i == 0 && b.Seq > seq+1 {
			complete = false
		}
		if b.Seq > seq {
			batches = append(batches, b)
		}
	}
	return batches, complete
}

// Len returns the number of buffered batches.
func (m *MemorySink) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.n
}

// LogSink writes a line per batch, and per command at debug level.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (l *LogSink) Publish(ctx context.Context, batch domain.CommandBatch) error {
	l.logger.InfoContext(ctx, "command batch",
		"batch_id", batch.ID,
		"seq", batch.Seq,
		"reason", batch.Reason,
		"commands", len(batch.Commands),
	)
	for _, c := range batch.Commands {
		l.logger.DebugContext(ctx, "command", "seq", batch.Seq, "slot", c.Slot())
	}
	return nil
}
