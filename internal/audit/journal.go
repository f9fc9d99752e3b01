// Package audit journals session lifecycle transitions without blocking the relay.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/deskpro/signaling-server/internal/metrics"
	"github.com/deskpro/signaling-server/internal/model"
	"github.com/rs/zerolog"
)

const defaultQueueSize = 1024

// Recorder accepts audit events.
type Recorder interface {
	Record(event model.AuditEvent)
}

// Store persists audit events.
type Store interface {
	Insert(ctx context.Context, event *model.AuditEvent) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(model.AuditEvent) {}

// Config holds configuration for a Journal.
type Config struct {
	QueueSize int
	Logger    *zerolog.Logger
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// Journal queues events and writes them to a Store from a single goroutine.
// Record never blocks: when the queue is full the event is dropped and counted.
type Journal struct {
	store   Store
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	queue chan model.AuditEvent
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewJournal creates a Journal and starts its writer.
func NewJournal(store Store, config Config) *Journal {
	if config.QueueSize <= 0 {
		config.QueueSize = defaultQueueSize
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	log := zerolog.Nop()
	if config.Logger != nil {
		log = *config.Logger
	}

	j := &Journal{
		store:   store,
		log:     log,
		metrics: config.Metrics,
		now:     config.Now,
		queue:   make(chan model.AuditEvent, config.QueueSize),
		done:    make(chan struct{}),
	}
	go j.run()
	return j
}

// Record queues an event for writing.
func (j *Journal) Record(event model.AuditEvent) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = j.now()
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		return
	}

	select {
	case j.queue <- event:
	default:
		j.metrics.Inc(metrics.AuditDropped)
		j.log.Warn().Str("session_id", event.SessionID).Str("kind", string(event.Kind)).Msg("audit queue full, event dropped")
	}
}

func (j *Journal) run() {
	defer close(j.done)

	for event := range j.queue {
		ev := event
		if err := j.store.Insert(context.Background(), &ev); err != nil {
			j.metrics.Inc(metrics.AuditWriteErrors)
			j.log.Error().Err(err).Str("session_id", ev.SessionID).Msg("failed to write audit event")
		}
	}
}

// Close stops accepting events and waits until queued events are written
// or ctx is done.
func (j *Journal) Close(ctx context.Context) error {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.queue)
	}
	j.mu.Unlock()

	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
