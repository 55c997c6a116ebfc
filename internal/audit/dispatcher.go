package audit

import (
	"context"
	"sync"

	"github.com/fabworks/fabops/backend/internal/domain"
	"go.uber.org/zap"
)

const defaultDispatcherBuffer = 64

type recordRequest struct {
	entityType domain.EntityType
	entityID   string
	changeType domain.ChangeType
	auditCtx   Context
	extras     *Extras
}

// Dispatcher decouples audit writes from the business operation that
// triggered them. Enqueue never blocks the caller and never fails the
// primary operation: writes happen on a worker goroutine and failures are
// logged, not propagated. Business handlers enqueue after their own
// transaction has committed.
type Dispatcher struct {
	service   *Service
	logger    *zap.Logger
	queue     chan recordRequest
	done      chan struct{}
	closeOnce sync.Once
}

// NewDispatcher starts the worker goroutine. Close must be called at
// shutdown to drain queued writes.
func NewDispatcher(service *Service, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = noOpLogger
	}
	d := &Dispatcher{
		service: service,
		logger:  logger,
		queue:   make(chan recordRequest, defaultDispatcherBuffer),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Enqueue submits a best-effort audit write. When the buffer is full the
// write is dropped and logged rather than stalling the caller.
func (d *Dispatcher) Enqueue(entityType domain.EntityType, entityID string, changeType domain.ChangeType, auditCtx Context, extras *Extras) {
	req := recordRequest{
		entityType: entityType,
		entityID:   entityID,
		changeType: changeType,
		auditCtx:   auditCtx,
		extras:     extras,
	}
	select {
	case d.queue <- req:
	default:
		d.logger.Error("audit queue full, dropping write",
			zap.String("entity_type", string(entityType)),
			zap.String("entity_id", entityID),
			zap.String("change_type", string(changeType)))
	}
}

// Close stops accepting writes and blocks until the queue drains.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.queue)
	})
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for req := range d.queue {
		if _, err := d.service.Record(context.Background(), req.entityType, req.entityID, req.changeType, req.auditCtx, req.extras); err != nil {
			d.logger.Error("audit write failed",
				zap.String("entity_type", string(req.entityType)),
				zap.String("entity_id", req.entityID),
				zap.String("change_type", string(req.changeType)),
				zap.Error(err))
		}
	}
}
