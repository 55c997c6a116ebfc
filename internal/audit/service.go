package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fabworks/fabops/backend/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrEntityNotFound indicates the audited entity does not exist.
	ErrEntityNotFound = errors.New("audit: entity not found")
	// ErrUnknownEntityType indicates an entity type outside QUOTE/ORDER/JOB.
	ErrUnknownEntityType = errors.New("audit: unknown entity type")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError wraps a failure with a stable machine-readable code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew    = "audit.service.new"
	opRecord        = "audit.record"
	opEntityHistory = "audit.entity_history"
	opSearch        = "audit.search"
	opStatistics    = "audit.statistics"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// ServiceConfig carries the dependencies for the audit service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// IDProvider issues identifiers for history rows.
type IDProvider interface {
	NewID() (string, error)
}

// Service owns the three append-only history tables: it is the only writer,
// and it serves timeline reconstruction, search, and statistics over them.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService validates the configuration and constructs the audit service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{db: cfg.Database, clock: clock, idProvider: cfg.IDProvider, logger: logger}, nil
}

// Extras carries the entity-specific history fields supplied by callers.
type Extras struct {
	CustomerApproved  *bool
	ApprovalTimestamp *time.Time
	MaterialChanges   any
	ProgressNotes     string
	Attachments       any
}

// Record loads the entity, bumps its version counter when the change type is
// version-bumping, and appends a full snapshot to the matching history
// table. The counter update and the append run in one transaction with the
// entity row locked, so concurrent audits of one entity serialize and every
// bump commits together with its history row.
func (s *Service) Record(ctx context.Context, entityType domain.EntityType, entityID string, changeType domain.ChangeType, auditCtx Context, extras *Extras) (Entry, error) {
	if s.db == nil {
		return Entry{}, newServiceError(opRecord, "missing_database", errMissingDatabase)
	}

	switch entityType {
	case domain.EntityQuote:
		return s.recordQuote(ctx, entityID, changeType, auditCtx)
	case domain.EntityOrder:
		return s.recordOrder(ctx, entityID, changeType, auditCtx, extras)
	case domain.EntityJob:
		return s.recordJob(ctx, entityID, changeType, auditCtx, extras)
	default:
		return Entry{}, newServiceError(opRecord, "unknown_entity_type", fmt.Errorf("%w: %q", ErrUnknownEntityType, entityType))
	}
}

func (s *Service) recordQuote(ctx context.Context, quoteID string, changeType domain.ChangeType, auditCtx Context) (Entry, error) {
	var row domain.QuoteHistory
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var quote domain.Quote
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Customer").
			Preload("Items").
			Preload("Items.Material").
			Preload("Documents").
			Where("id = ?", quoteID).
			Take(&quote).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opRecord, "quote_not_found", fmt.Errorf("%w: quote %s", ErrEntityNotFound, quoteID))
		}
		if err != nil {
			return newServiceError(opRecord, "quote_select_failed", err)
		}

		version := quote.CurrentVersion
		if domain.VersionBumps(domain.EntityQuote, changeType) {
			version++
			if err := tx.Model(&domain.Quote{}).Where("id = ?", quoteID).
				Update("current_version", version).Error; err != nil {
				return newServiceError(opRecord, "quote_version_update_failed", err)
			}
		}

		snapshot, err := json.Marshal(quote)
		if err != nil {
			return newServiceError(opRecord, "quote_snapshot_failed", err)
		}

		id, err := s.idProvider.NewID()
		if err != nil {
			return newServiceError(opRecord, "id_generation_failed", err)
		}

		row = domain.QuoteHistory{
			ID:            id,
			QuoteID:       quoteID,
			ChangeType:    changeType,
			Version:       version,
			Status:        string(quote.Status),
			Data:          string(snapshot),
			ChangedBy:     actorOrSystem(auditCtx.UserID),
			ChangedByName: auditCtx.UserName,
			ChangeReason:  auditCtx.Reason,
			IPAddress:     auditCtx.IPAddress,
			UserAgent:     auditCtx.UserAgent,
			CreatedAt:     s.clock().UTC(),
		}
		if err := tx.Create(&row).Error; err != nil {
			return newServiceError(opRecord, "quote_history_insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError(opRecord, txErr, zap.String("entity_type", string(domain.EntityQuote)), zap.String("entity_id", quoteID))
		return Entry{}, txErr
	}
	return entryFromQuoteRow(row), nil
}

func (s *Service) recordOrder(ctx context.Context, orderID string, changeType domain.ChangeType, auditCtx Context, extras *Extras) (Entry, error) {
	var row domain.OrderHistory
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order domain.Order
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Customer").
			Preload("Documents").
			Where("id = ?", orderID).
			Take(&order).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opRecord, "order_not_found", fmt.Errorf("%w: order %s", ErrEntityNotFound, orderID))
		}
		if err != nil {
			return newServiceError(opRecord, "order_select_failed", err)
		}

		version := order.CurrentVersion
		if domain.VersionBumps(domain.EntityOrder, changeType) {
			version++
			if err := tx.Model(&domain.Order{}).Where("id = ?", orderID).
				Update("current_version", version).Error; err != nil {
				return newServiceError(opRecord, "order_version_update_failed", err)
			}
		}

		snapshot, err := json.Marshal(order)
		if err != nil {
			return newServiceError(opRecord, "order_snapshot_failed", err)
		}

		id, err := s.idProvider.NewID()
		if err != nil {
			return newServiceError(opRecord, "id_generation_failed", err)
		}

		row = domain.OrderHistory{
			ID:            id,
			OrderID:       orderID,
			ChangeType:    changeType,
			Version:       version,
			Status:        string(order.Status),
			Data:          string(snapshot),
			ChangedBy:     actorOrSystem(auditCtx.UserID),
			ChangedByName: auditCtx.UserName,
			ChangeReason:  auditCtx.Reason,
			IPAddress:     auditCtx.IPAddress,
			UserAgent:     auditCtx.UserAgent,
			CreatedAt:     s.clock().UTC(),
		}
		if extras != nil {
			row.CustomerApproved = extras.CustomerApproved
			row.ApprovalTimestamp = extras.ApprovalTimestamp
		}
		if err := tx.Create(&row).Error; err != nil {
			return newServiceError(opRecord, "order_history_insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError(opRecord, txErr, zap.String("entity_type", string(domain.EntityOrder)), zap.String("entity_id", orderID))
		return Entry{}, txErr
	}
	return entryFromOrderRow(row), nil
}

func (s *Service) recordJob(ctx context.Context, jobID string, changeType domain.ChangeType, auditCtx Context, extras *Extras) (Entry, error) {
	var row domain.JobHistory
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job domain.Job
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Materials").
			Preload("Materials.Material").
			Preload("Documents").
			Where("id = ?", jobID).
			Take(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opRecord, "job_not_found", fmt.Errorf("%w: job %s", ErrEntityNotFound, jobID))
		}
		if err != nil {
			return newServiceError(opRecord, "job_select_failed", err)
		}

		version := job.CurrentVersion
		if domain.VersionBumps(domain.EntityJob, changeType) {
			version++
			if err := tx.Model(&domain.Job{}).Where("id = ?", jobID).
				Update("current_version", version).Error; err != nil {
				return newServiceError(opRecord, "job_version_update_failed", err)
			}
		}

		snapshot, err := json.Marshal(job)
		if err != nil {
			return newServiceError(opRecord, "job_snapshot_failed", err)
		}

		id, err := s.idProvider.NewID()
		if err != nil {
			return newServiceError(opRecord, "id_generation_failed", err)
		}

		row = domain.JobHistory{
			ID:            id,
			JobID:         jobID,
			ChangeType:    changeType,
			Version:       version,
			Status:        string(job.Status),
			Data:          string(snapshot),
			ChangedBy:     actorOrSystem(auditCtx.UserID),
			ChangedByName: auditCtx.UserName,
			ChangeReason:  auditCtx.Reason,
			IPAddress:     auditCtx.IPAddress,
			UserAgent:     auditCtx.UserAgent,
			CreatedAt:     s.clock().UTC(),
		}
		if extras != nil {
			materialChanges, err := marshalExtra(extras.MaterialChanges)
			if err != nil {
				return newServiceError(opRecord, "material_changes_marshal_failed", err)
			}
			attachments, err := marshalExtra(extras.Attachments)
			if err != nil {
				return newServiceError(opRecord, "attachments_marshal_failed", err)
			}
			row.MaterialChanges = materialChanges
			row.Attachments = attachments
			row.ProgressNotes = extras.ProgressNotes
		}
		if err := tx.Create(&row).Error; err != nil {
			return newServiceError(opRecord, "job_history_insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError(opRecord, txErr, zap.String("entity_type", string(domain.EntityJob)), zap.String("entity_id", jobID))
		return Entry{}, txErr
	}
	return entryFromJobRow(row), nil
}

func marshalExtra(value any) (string, error) {
	if value == nil {
		return "", nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func actorOrSystem(userID string) string {
	if userID == "" {
		return SystemActor
	}
	return userID
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation string, err error, fields ...zap.Field) {
	attrs := append([]zap.Field{zap.String("operation", operation), zap.Error(err)}, fields...)
	s.loggerOrDefault().Error("audit service error", attrs...)
}
