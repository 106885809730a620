package service

import (
	"context"
	"sync"
	"time"

	"github.com/Harshitk-cp/factgate/internal/domain"
	"github.com/Harshitk-cp/factgate/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultAuditBufferSize = 256
	auditWriteTimeout      = 5 * time.Second
)

// AuditLogger hands audit events to a store from a single background writer.
// Emit never blocks the caller and never reports an error.
type AuditLogger struct {
	store   domain.AuditStore
	metrics *metrics.Metrics
	logger  *zap.Logger

	// mu orders sends against Stop so nothing lands after the final drain.
	mu      sync.RWMutex
	stopped bool
	events  chan *domain.AuditEvent
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewAuditLogger creates a logger writing to store. A nil store sends events
// to the zap logger at debug level only.
func NewAuditLogger(store domain.AuditStore, bufferSize int, m *metrics.Metrics, logger *zap.Logger) *AuditLogger {
	if bufferSize <= 0 {
		bufferSize = defaultAuditBufferSize
	}
	return &AuditLogger{
		store:   store,
		metrics: m,
		logger:  logger,
		events:  make(chan *domain.AuditEvent, bufferSize),
		stopCh:  make(chan struct{}),
	}
}

// Start runs the writer in a background goroutine.
func (a *AuditLogger) Start() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.logger.Info("audit logger started", zap.Int("buffer", cap(a.events)))

		for {
			select {
			case e := <-a.events:
				a.write(e)
			case <-a.stopCh:
				a.drain()
				a.logger.Info("audit logger stopped")
				return
			}
		}
	}()
}

// Stop flushes buffered events and waits for the writer to exit. Events
// still queued when the writer was never started are counted as dropped.
func (a *AuditLogger) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	a.mu.Unlock()

	close(a.stopCh)
	a.wg.Wait()

	for {
		select {
		case e := <-a.events:
			a.dropped(e)
		default:
			return
		}
	}
}

// Emit queues an event. When the buffer is full, or the logger is stopped,
// the event is dropped and counted.
func (a *AuditLogger) Emit(e *domain.AuditEvent) {
	if a == nil || e == nil {
		return
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.stopped {
		a.dropped(e)
		return
	}
	select {
	case a.events <- e:
	default:
		a.dropped(e)
	}
}

func (a *AuditLogger) dropped(e *domain.AuditEvent) {
	a.metrics.AuditEventDropped()
	a.logger.Warn("audit event dropped",
		zap.String("kind", string(e.Kind)),
		zap.String("subject_id", e.SubjectID))
}

func (a *AuditLogger) drain() {
	for {
		select {
		case e := <-a.events:
			a.write(e)
		default:
			return
		}
	}
}

func (a *AuditLogger) write(e *domain.AuditEvent) {
	if a.store == nil {
		a.logger.Debug("audit event",
			zap.String("id", e.ID.String()),
			zap.String("kind", string(e.Kind)),
			zap.String("subject_id", e.SubjectID),
			zap.String("verdict", e.Verdict),
			zap.Float64("penalty", e.Penalty),
			zap.Float64("confidence", e.Confidence),
			zap.String("reasoning", e.Reasoning))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	defer cancel()
	if err := a.store.Create(ctx, e); err != nil {
		a.logger.Error("failed to write audit event",
			zap.String("kind", string(e.Kind)),
			zap.String("subject_id", e.SubjectID),
			zap.Error(err))
	}
}
