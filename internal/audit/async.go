package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultQueueSize    = 512
	defaultWriteTimeout = 250 * time.Millisecond
	// maxBatch bounds how many queued entries share one write.
	maxBatch = 64
)

// BatchLogger is implemented by sinks that can store several entries in one
// write, such as SQLiteLogger.
type BatchLogger interface {
	LogBatch(ctx context.Context, entries []Entry) error
}

var (
	ErrClosed    = errors.New("audit logger is closed")
	ErrQueueFull = errors.New("audit log queue is full")
)

type AsyncOptions struct {
	QueueSize    int
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// AsyncLogger moves audit writes off the request path. Entries queued
// together are written as one batch; entries that fail to persist or find the
// queue full are logged, counted and dropped.
type AsyncLogger struct {
	sink         Logger
	logger       *slog.Logger
	writeTimeout time.Duration

	queue   chan Entry
	closed  bool
	mu      sync.RWMutex
	once    sync.Once
	wg      sync.WaitGroup
	dropped atomic.Uint64

	// progress guards the counters below. written only grows; each advance
	// closes and replaces advanced.
	progress sync.Mutex
	enqueued uint64
	written  uint64
	advanced chan struct{}
}

var _ Logger = (*AsyncLogger)(nil)

func NewAsyncLogger(sink Logger, opts AsyncOptions) *AsyncLogger {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	l := &AsyncLogger{
		sink:         sink,
		logger:       opts.Logger,
		writeTimeout: opts.WriteTimeout,
		queue:        make(chan Entry, opts.QueueSize),
		advanced:     make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *AsyncLogger) run() {
	defer l.wg.Done()
	batch := make([]Entry, 0, maxBatch)
	for entry := range l.queue {
		batch = append(batch[:0], entry)
	drain:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-l.queue:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}
		l.write(batch)
		l.markWritten(len(batch))
	}
}

func (l *AsyncLogger) markWritten(n int) {
	l.progress.Lock()
	l.written += uint64(n)
	close(l.advanced)
	l.advanced = make(chan struct{})
	l.progress.Unlock()
}

func (l *AsyncLogger) write(batch []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), l.writeTimeout)
	defer cancel()

	if bl, ok := l.sink.(BatchLogger); ok {
		if err := bl.LogBatch(ctx, batch); err != nil {
			failed := len(batch)
			var be *BatchError
			if errors.As(err, &be) {
				failed = be.Failed
			}
			l.dropped.Add(uint64(failed))
			l.logger.Error("audit batch write failed", "entries", len(batch), "failed", failed, "error", err)
		}
		return
	}
	for _, entry := range batch {
		if err := l.sink.Log(ctx, entry); err != nil {
			l.dropped.Add(1)
			l.logger.Error("audit write failed", "operation", entry.Operation, "actor", entry.Actor, "error", err)
		}
	}
}

// Log enqueues entry without blocking. The timestamp is fixed at enqueue time.
func (l *AsyncLogger) Log(_ context.Context, entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	l.progress.Lock()
	defer l.progress.Unlock()
	select {
	case l.queue <- entry:
		l.enqueued++
		return nil
	default:
		l.dropped.Add(1)
		return ErrQueueFull
	}
}

// Query waits for entries already queued so a change is visible to the next
// audit read, then queries the sink.
func (l *AsyncLogger) Query(ctx context.Context, filter Filter) (QueryResult, error) {
	if err := l.WaitIdle(ctx); err != nil {
		return QueryResult{}, err
	}
	return l.sink.Query(ctx, filter)
}

// Dropped counts entries lost to a full queue or a failed write.
func (l *AsyncLogger) Dropped() uint64 {
	return l.dropped.Load()
}

// Close stops accepting entries and waits for the queue to drain.
func (l *AsyncLogger) Close(ctx context.Context) error {
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.queue)
		l.mu.Unlock()
	})
	if err := waitContext(ctx, l.wg.Wait); err != nil {
		return err
	}
	if n := l.Dropped(); n > 0 {
		l.logger.Warn("audit entries were dropped", "count", n)
	}
	return nil
}

// WaitIdle waits until every entry accepted before the call has been written
// or dropped by the worker.
func (l *AsyncLogger) WaitIdle(ctx context.Context) error {
	l.progress.Lock()
	target := l.enqueued
	l.progress.Unlock()
	for {
		l.progress.Lock()
		done := l.written >= target
		advanced := l.advanced
		l.progress.Unlock()
		if done {
			return nil
		}
		select {
		case <-advanced:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func waitContext(ctx context.Context, wait func()) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		wait()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
