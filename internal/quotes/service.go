package quotes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fabworks/fabops/backend/internal/audit"
	"github.com/fabworks/fabops/backend/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound indicates the quote does not exist.
	ErrNotFound = errors.New("quotes: quote not found")
	// ErrNotLatestVersion indicates a chain mutation was attempted on a
	// superseded version row.
	ErrNotLatestVersion = errors.New("quotes: not the latest version")
	// ErrNotEditable indicates an in-place update on a non-draft quote.
	ErrNotEditable = errors.New("quotes: only draft quotes are editable in place")
	// ErrChangeReasonRequired indicates a new chain version was requested
	// without a change reason.
	ErrChangeReasonRequired = errors.New("quotes: change reason required")
	// ErrInvalidStatus indicates an unsupported or unchanged target status.
	ErrInvalidStatus = errors.New("quotes: invalid status transition")
	// ErrAlreadyConverted indicates the quote has already become an order.
	ErrAlreadyConverted = errors.New("quotes: quote already converted")

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
	opServiceNew   = "quotes.service.new"
	opCreate       = "quotes.create"
	opUpdate       = "quotes.update"
	opChangeStatus = "quotes.change_status"
	opClone        = "quotes.clone"
	opConvert      = "quotes.convert"
	opGet          = "quotes.get"
	opChain        = "quotes.chain"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// Auditor receives best-effort audit writes after a mutation commits.
type Auditor interface {
	Enqueue(entityType domain.EntityType, entityID string, changeType domain.ChangeType, auditCtx audit.Context, extras *audit.Extras)
}

// ServiceConfig carries the dependencies for the quote service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider audit.IDProvider
	Auditor    Auditor
	Logger     *zap.Logger
}

// Service implements the quote version chain: creation, in-place draft
// edits, status changes that append new chain versions, cloning, and
// conversion to orders. Every committed mutation is followed by a
// fire-and-forget audit write.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider audit.IDProvider
	audits     Auditor
	logger     *zap.Logger
}

// NewService validates the configuration and constructs the quote service.
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

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		audits:     cfg.Auditor,
		logger:     logger,
	}, nil
}

// ItemInput describes one priced line supplied by the caller.
type ItemInput struct {
	MaterialID  string
	Description string
	Quantity    float64
	UnitPrice   float64
}

// CreateQuoteInput describes a new quote chain root.
type CreateQuoteInput struct {
	CustomerID string
	Items      []ItemInput
	Notes      string
	CreatedBy  string
	ValidUntil *time.Time
	TaxRate    float64
}

// CreateQuote creates version 1 of a new chain: a fresh quote reference,
// IsLatestVersion set, no parent. The version counter starts at zero; the
// CREATE audit bump takes it to one.
func (s *Service) CreateQuote(ctx context.Context, input CreateQuoteInput, auditCtx audit.Context) (domain.Quote, error) {
	if strings.TrimSpace(input.CustomerID) == "" {
		return domain.Quote{}, newServiceError(opCreate, "missing_customer", errors.New("customer id is required"))
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return domain.Quote{}, newServiceError(opCreate, "id_generation_failed", err)
	}

	now := s.clock().UTC()
	quote := domain.Quote{
		ID:              id,
		QuoteReference:  referenceFromID("QR", id),
		VersionNumber:   1,
		IsLatestVersion: true,
		Status:          domain.QuoteStatusDraft,
		CurrentVersion:  0,
		CustomerID:      input.CustomerID,
		CreatedBy:       input.CreatedBy,
		Notes:           input.Notes,
		ValidUntil:      input.ValidUntil,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	items, err := s.buildItems(id, input.Items)
	if err != nil {
		return domain.Quote{}, newServiceError(opCreate, "id_generation_failed", err)
	}
	quote.Subtotal, quote.Tax, quote.Total = totals(items, input.TaxRate)

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&quote).Error; err != nil {
			return newServiceError(opCreate, "quote_insert_failed", err)
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return newServiceError(opCreate, "items_insert_failed", err)
			}
		}
		return nil
	})
	if txErr != nil {
		s.logError(opCreate, txErr, zap.String("quote_id", id))
		return domain.Quote{}, txErr
	}

	quote.Items = items
	s.enqueueAudit(quote.ID, domain.ChangeCreate, auditCtx)
	return quote, nil
}

// UpdateQuoteInput describes an in-place edit. Nil fields are left alone.
type UpdateQuoteInput struct {
	Notes      *string
	ValidUntil *time.Time
	Items      *[]ItemInput
	TaxRate    float64
}

// UpdateQuote mutates a draft quote in place. No new chain row is created
// and the version number is untouched; only the audit counter moves, via
// the UPDATE history entry. Non-draft quotes reject in-place edits.
func (s *Service) UpdateQuote(ctx context.Context, quoteID string, input UpdateQuoteInput, auditCtx audit.Context) (domain.Quote, error) {
	var updated domain.Quote
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		quote, err := s.lockQuote(tx, quoteID, opUpdate)
		if err != nil {
			return err
		}
		if quote.Status != domain.QuoteStatusDraft {
			return newServiceError(opUpdate, "not_editable", fmt.Errorf("%w: status %s", ErrNotEditable, quote.Status))
		}

		if input.Notes != nil {
			quote.Notes = *input.Notes
		}
		if input.ValidUntil != nil {
			quote.ValidUntil = input.ValidUntil
		}
		if input.Items != nil {
			if err := tx.Where("quote_id = ?", quote.ID).Delete(&domain.QuoteItem{}).Error; err != nil {
				return newServiceError(opUpdate, "items_delete_failed", err)
			}
			items, err := s.buildItems(quote.ID, *input.Items)
			if err != nil {
				return newServiceError(opUpdate, "id_generation_failed", err)
			}
			if len(items) > 0 {
				if err := tx.Create(&items).Error; err != nil {
					return newServiceError(opUpdate, "items_insert_failed", err)
				}
			}
			quote.Items = items
			quote.Subtotal, quote.Tax, quote.Total = totals(items, input.TaxRate)
		}
		quote.UpdatedAt = s.clock().UTC()

		if err := tx.Omit("Items", "Customer", "Documents").Save(&quote).Error; err != nil {
			return newServiceError(opUpdate, "quote_save_failed", err)
		}
		updated = quote
		return nil
	})
	if txErr != nil {
		s.logError(opUpdate, txErr, zap.String("quote_id", quoteID))
		return domain.Quote{}, txErr
	}

	s.enqueueAudit(updated.ID, domain.ChangeUpdate, auditCtx)
	return updated, nil
}

// ChangeStatus transitions the latest version of a chain by appending a new
// version row: the predecessor's IsLatestVersion flips false, and the new
// row records the parent link, the next version number, and the mandatory
// change reason. Both writes commit in one transaction.
func (s *Service) ChangeStatus(ctx context.Context, quoteID string, newStatus domain.QuoteStatus, auditCtx audit.Context) (domain.Quote, error) {
	if !validQuoteStatus(newStatus) {
		return domain.Quote{}, newServiceError(opChangeStatus, "invalid_status", fmt.Errorf("%w: %q", ErrInvalidStatus, newStatus))
	}

	var revision domain.Quote
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		quote, err := s.lockQuote(tx, quoteID, opChangeStatus)
		if err != nil {
			return err
		}
		next, err := s.reviseLocked(tx, quote, newStatus, auditCtx.Reason, opChangeStatus)
		if err != nil {
			return err
		}
		revision = next
		return nil
	})
	if txErr != nil {
		s.logError(opChangeStatus, txErr, zap.String("quote_id", quoteID))
		return domain.Quote{}, txErr
	}

	s.enqueueAudit(revision.ID, statusChangeType(newStatus), auditCtx)
	return revision, nil
}

// CloneQuote starts a fresh chain from an existing version: new reference,
// version number one, draft status, no parent link.
func (s *Service) CloneQuote(ctx context.Context, quoteID string, auditCtx audit.Context) (domain.Quote, error) {
	var clone domain.Quote
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		source, err := s.lockQuote(tx, quoteID, opClone)
		if err != nil {
			return err
		}

		id, err := s.idProvider.NewID()
		if err != nil {
			return newServiceError(opClone, "id_generation_failed", err)
		}

		now := s.clock().UTC()
		clone = domain.Quote{
			ID:              id,
			QuoteReference:  referenceFromID("QR", id),
			VersionNumber:   1,
			IsLatestVersion: true,
			Status:          domain.QuoteStatusDraft,
			CurrentVersion:  0,
			CustomerID:      source.CustomerID,
			CreatedBy:       actor(auditCtx),
			Notes:           source.Notes,
			Subtotal:        source.Subtotal,
			Tax:             source.Tax,
			Total:           source.Total,
			ValidUntil:      source.ValidUntil,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.Create(&clone).Error; err != nil {
			return newServiceError(opClone, "quote_insert_failed", err)
		}

		items, err := s.copyItems(id, source.Items)
		if err != nil {
			return newServiceError(opClone, "id_generation_failed", err)
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return newServiceError(opClone, "items_insert_failed", err)
			}
		}
		clone.Items = items
		return nil
	})
	if txErr != nil {
		s.logError(opClone, txErr, zap.String("quote_id", quoteID))
		return domain.Quote{}, txErr
	}

	s.enqueueAudit(clone.ID, domain.ChangeClone, auditCtx)
	return clone, nil
}

// ConvertToOrder creates an order from an approved quote and appends a
// CONVERTED version to the chain, in one transaction.
func (s *Service) ConvertToOrder(ctx context.Context, quoteID string, auditCtx audit.Context) (domain.Order, domain.Quote, error) {
	var order domain.Order
	var revision domain.Quote
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		quote, err := s.lockQuote(tx, quoteID, opConvert)
		if err != nil {
			return err
		}
		if quote.Status == domain.QuoteStatusConverted {
			return newServiceError(opConvert, "already_converted", fmt.Errorf("%w: quote %s", ErrAlreadyConverted, quoteID))
		}
		if quote.Status != domain.QuoteStatusApproved {
			return newServiceError(opConvert, "not_approved", fmt.Errorf("%w: status %s", ErrInvalidStatus, quote.Status))
		}

		orderID, err := s.idProvider.NewID()
		if err != nil {
			return newServiceError(opConvert, "id_generation_failed", err)
		}
		now := s.clock().UTC()
		order = domain.Order{
			ID:             orderID,
			OrderReference: referenceFromID("OR", orderID),
			Status:         domain.OrderStatusPending,
			CurrentVersion: 0,
			QuoteID:        &quote.ID,
			CustomerID:     quote.CustomerID,
			CreatedBy:      actor(auditCtx),
			Notes:          quote.Notes,
			Total:          quote.Total,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Create(&order).Error; err != nil {
			return newServiceError(opConvert, "order_insert_failed", err)
		}

		reason := auditCtx.Reason
		if reason == "" {
			reason = fmt.Sprintf("Converted to order %s", order.OrderReference)
		}
		next, err := s.reviseLocked(tx, quote, domain.QuoteStatusConverted, reason, opConvert)
		if err != nil {
			return err
		}
		revision = next
		return nil
	})
	if txErr != nil {
		s.logError(opConvert, txErr, zap.String("quote_id", quoteID))
		return domain.Order{}, domain.Quote{}, txErr
	}

	s.enqueueAudit(revision.ID, domain.ChangeConvert, auditCtx)
	if s.audits != nil {
		s.audits.Enqueue(domain.EntityOrder, order.ID, domain.ChangeCreate, auditCtx, nil)
	}
	return order, revision, nil
}

// GetQuote loads one version row with its relations.
func (s *Service) GetQuote(ctx context.Context, quoteID string) (domain.Quote, error) {
	var quote domain.Quote
	err := s.db.WithContext(ctx).
		Preload("Customer").
		Preload("Items").
		Preload("Items.Material").
		Preload("Documents").
		Where("id = ?", quoteID).
		Take(&quote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Quote{}, newServiceError(opGet, "not_found", fmt.Errorf("%w: %s", ErrNotFound, quoteID))
	}
	if err != nil {
		return domain.Quote{}, newServiceError(opGet, "query_failed", err)
	}
	return quote, nil
}

// QuoteChain returns every version row sharing a reference, ascending by
// version number.
func (s *Service) QuoteChain(ctx context.Context, reference string) ([]domain.Quote, error) {
	var chain []domain.Quote
	err := s.db.WithContext(ctx).
		Preload("Items").
		Where("quote_reference = ?", reference).
		Order("version_number ASC").
		Find(&chain).Error
	if err != nil {
		return nil, newServiceError(opChain, "query_failed", err)
	}
	if len(chain) == 0 {
		return nil, newServiceError(opChain, "not_found", fmt.Errorf("%w: reference %s", ErrNotFound, reference))
	}
	return chain, nil
}

// reviseLocked appends version N+1 to the chain of an already-locked latest
// row. Creating any version beyond the first requires a change reason.
func (s *Service) reviseLocked(tx *gorm.DB, quote domain.Quote, newStatus domain.QuoteStatus, reason, operation string) (domain.Quote, error) {
	if !quote.IsLatestVersion {
		return domain.Quote{}, newServiceError(operation, "not_latest_version", fmt.Errorf("%w: quote %s", ErrNotLatestVersion, quote.ID))
	}
	if quote.Status == newStatus {
		return domain.Quote{}, newServiceError(operation, "status_unchanged", fmt.Errorf("%w: already %s", ErrInvalidStatus, newStatus))
	}
	if strings.TrimSpace(reason) == "" {
		return domain.Quote{}, newServiceError(operation, "missing_change_reason", ErrChangeReasonRequired)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return domain.Quote{}, newServiceError(operation, "id_generation_failed", err)
	}

	now := s.clock().UTC()
	next := domain.Quote{
		ID:              id,
		QuoteReference:  quote.QuoteReference,
		VersionNumber:   quote.VersionNumber + 1,
		IsLatestVersion: true,
		ParentQuoteID:   &quote.ID,
		ChangeReason:    reason,
		Status:          newStatus,
		CurrentVersion:  quote.CurrentVersion,
		CustomerID:      quote.CustomerID,
		CreatedBy:       quote.CreatedBy,
		Notes:           quote.Notes,
		Subtotal:        quote.Subtotal,
		Tax:             quote.Tax,
		Total:           quote.Total,
		ValidUntil:      quote.ValidUntil,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := tx.Model(&domain.Quote{}).Where("id = ?", quote.ID).
		Update("is_latest_version", false).Error; err != nil {
		return domain.Quote{}, newServiceError(operation, "predecessor_update_failed", err)
	}
	if err := tx.Create(&next).Error; err != nil {
		return domain.Quote{}, newServiceError(operation, "revision_insert_failed", err)
	}

	items, err := s.copyItems(id, quote.Items)
	if err != nil {
		return domain.Quote{}, newServiceError(operation, "id_generation_failed", err)
	}
	if len(items) > 0 {
		if err := tx.Create(&items).Error; err != nil {
			return domain.Quote{}, newServiceError(operation, "items_insert_failed", err)
		}
	}
	next.Items = items
	return next, nil
}

func (s *Service) lockQuote(tx *gorm.DB, quoteID, operation string) (domain.Quote, error) {
	var quote domain.Quote
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items").
		Where("id = ?", quoteID).
		Take(&quote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Quote{}, newServiceError(operation, "not_found", fmt.Errorf("%w: %s", ErrNotFound, quoteID))
	}
	if err != nil {
		return domain.Quote{}, newServiceError(operation, "quote_select_failed", err)
	}
	return quote, nil
}

func (s *Service) buildItems(quoteID string, inputs []ItemInput) ([]domain.QuoteItem, error) {
	items := make([]domain.QuoteItem, 0, len(inputs))
	for _, input := range inputs {
		id, err := s.idProvider.NewID()
		if err != nil {
			return nil, err
		}
		items = append(items, domain.QuoteItem{
			ID:          id,
			QuoteID:     quoteID,
			MaterialID:  input.MaterialID,
			Description: input.Description,
			Quantity:    input.Quantity,
			UnitPrice:   input.UnitPrice,
			LineTotal:   input.Quantity * input.UnitPrice,
		})
	}
	return items, nil
}

func (s *Service) copyItems(quoteID string, source []domain.QuoteItem) ([]domain.QuoteItem, error) {
	items := make([]domain.QuoteItem, 0, len(source))
	for _, item := range source {
		id, err := s.idProvider.NewID()
		if err != nil {
			return nil, err
		}
		items = append(items, domain.QuoteItem{
			ID:          id,
			QuoteID:     quoteID,
			MaterialID:  item.MaterialID,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   item.LineTotal,
		})
	}
	return items, nil
}

func (s *Service) enqueueAudit(quoteID string, changeType domain.ChangeType, auditCtx audit.Context) {
	if s.audits == nil {
		return
	}
	s.audits.Enqueue(domain.EntityQuote, quoteID, changeType, auditCtx, nil)
}

func (s *Service) logError(operation string, err error, fields ...zap.Field) {
	attrs := append([]zap.Field{zap.String("operation", operation), zap.Error(err)}, fields...)
	s.logger.Error("quote service error", attrs...)
}

func statusChangeType(status domain.QuoteStatus) domain.ChangeType {
	switch status {
	case domain.QuoteStatusApproved:
		return domain.ChangeApproved
	case domain.QuoteStatusDeclined:
		return domain.ChangeRejected
	default:
		return domain.ChangeStatusChange
	}
}

func validQuoteStatus(status domain.QuoteStatus) bool {
	switch status {
	case domain.QuoteStatusDraft, domain.QuoteStatusSent, domain.QuoteStatusApproved,
		domain.QuoteStatusDeclined, domain.QuoteStatusExpired, domain.QuoteStatusConverted:
		return true
	default:
		return false
	}
}

func totals(items []domain.QuoteItem, taxRate float64) (subtotal, tax, total float64) {
	for _, item := range items {
		subtotal += item.LineTotal
	}
	tax = subtotal * taxRate
	return subtotal, tax, subtotal + tax
}

func actor(auditCtx audit.Context) string {
	if auditCtx.UserID == "" {
		return audit.SystemActor
	}
	return auditCtx.UserID
}

func referenceFromID(prefix, id string) string {
	compact := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(compact) > 8 {
		compact = compact[:8]
	}
	return fmt.Sprintf("%s-%s", prefix, compact)
}
