package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sink receives records after they are stored. Emit must not block.
type Sink interface {
	Emit(r Record)
}

type SinkFunc func(r Record)

func (f SinkFunc) Emit(r Record) { f(r) }

// Publisher delivers a record to an external system.
type Publisher interface {
	Publish(ctx context.Context, r Record) error
}

// AsyncSink buffers records and hands them to a Publisher from a single
// worker goroutine. Records are dropped when the buffer is full.
type AsyncSink struct {
	pub     Publisher
	ch      chan Record
	timeout time.Duration
	log     *zap.Logger
	wg      sync.WaitGroup

	state  sync.RWMutex
	closed bool

	mu      sync.Mutex
	dropped int64
}

func NewAsyncSink(pub Publisher, buffer int, timeout time.Duration, log *zap.Logger) *AsyncSink {
	if buffer <= 0 {
		buffer = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &AsyncSink{pub: pub, ch: make(chan Record, buffer), timeout: timeout, log: log}
	s.wg.Add(1)
	go s.run()
	return s
}

// Emit queues r without blocking. Records emitted after Close are dropped.
func (s *AsyncSink) Emit(r Record) {
	s.state.RLock()
	defer s.state.RUnlock()
	if !s.closed {
		select {
		case s.ch <- r:
			return
		default:
		}
	}
	s.mu.Lock()
	s.dropped++
	s.mu.Unlock()
	s.log.Warn("audit_sink_dropped", zap.String("id", r.ID))
}

func (s *AsyncSink) run() {
	defer s.wg.Done()
	for r := range s.ch {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		if err := s.pub.Publish(ctx, r); err != nil {
			s.log.Warn("audit_sink_publish_failed", zap.String("id", r.ID), zap.Error(err))
		}
		cancel()
	}
}

// Dropped reports how many records were discarded because the buffer was full.
func (s *AsyncSink) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close stops accepting records and waits for queued ones to be published.
func (s *AsyncSink) Close() {
	s.state.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.state.Unlock()
	s.wg.Wait()
}
