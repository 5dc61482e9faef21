package service

import (
	"context"
	"sync"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/metrics"
	"go.uber.org/zap"
)

type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}

const (
	auditBufferSize   = 10_000
	auditWriteTimeout = 5 * time.Second
	auditDrainTimeout = 10 * time.Second
)

// AuditService persists audit records on a single background worker so
// request paths never wait on the audit table. Records are dropped, and
// counted, when the queue is full.
type AuditService struct {
	repo    AuditRepository
	metrics *metrics.Collector
	log     *zap.Logger
	queue   chan *domain.AuditLog
	drained chan struct{}

	// mu guards closed; sends hold the read lock so Shutdown cannot close
	// the queue underneath them.
	mu     sync.RWMutex
	closed bool
}

func NewAuditService(repo AuditRepository, m *metrics.Collector, log *zap.Logger) *AuditService {
	return newAuditService(repo, m, log, auditBufferSize)
}

func newAuditService(repo AuditRepository, m *metrics.Collector, log *zap.Logger, size int) *AuditService {
	s := &AuditService{
		repo:    repo,
		metrics: m,
		log:     log.Named("audit"),
		queue:   make(chan *domain.AuditLog, size),
		drained: make(chan struct{}),
	}
	go s.run()
	return s
}

// LogAsync enqueues a record without blocking. Records arriving after
// Shutdown are dropped like those arriving on a full queue.
func (s *AuditService) LogAsync(_ context.Context, entry AuditEntry) {
	rec := entry.record()

	s.mu.RLock()
	queued := false
	if !s.closed {
		select {
		case s.queue <- rec:
			queued = true
		default:
		}
	}
	stopped := s.closed
	s.mu.RUnlock()

	if !queued {
		s.metrics.AuditDropped()
		msg := "audit queue full, dropping record"
		if stopped {
			msg = "audit service stopped, dropping record"
		}
		s.log.Warn(msg,
			zap.String("action", string(rec.Action)),
			zap.String("resource_type", rec.ResourceType),
			zap.String("resource_id", rec.ResourceID),
		)
	}
}

// Shutdown stops accepting records and waits for the queue to drain.
// Calling it again is a no-op.
func (s *AuditService) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	t := time.NewTimer(auditDrainTimeout)
	defer t.Stop()
	select {
	case <-s.drained:
	case <-t.C:
		s.log.Warn("audit drain timed out", zap.Int("pending", len(s.queue)))
	}
}

func (s *AuditService) run() {
	defer close(s.drained)
	for rec := range s.queue {
		s.persist(rec)
	}
}

func (s *AuditService) persist(rec *domain.AuditLog) {
	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	defer cancel()
	if err := s.repo.Create(ctx, rec); err != nil {
		s.log.Error("persisting audit record",
			zap.String("action", string(rec.Action)),
			zap.String("request_id", rec.RequestID),
			zap.Error(err),
		)
		return
	}
	s.metrics.Audited()
}
