package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fabworks/fabops/backend/internal/audit"
	"github.com/fabworks/fabops/backend/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingAudit    = errors.New("audit service is required")
	errMissingStore    = errors.New("file store is required")
	noOpLogger         = zap.NewNop()
)

// ServiceConfig carries the dependencies for the evidence service.
type ServiceConfig struct {
	Database *gorm.DB
	Audit    *audit.Service
	Store    *FileStore
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service assembles legal evidence packages over the audit timeline and
// renders them to exportable artifacts.
type Service struct {
	db     *gorm.DB
	audit  *audit.Service
	store  *FileStore
	clock  func() time.Time
	logger *zap.Logger
}

// NewService validates the configuration and constructs the evidence service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Audit == nil {
		return nil, errMissingAudit
	}
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, audit: cfg.Audit, store: cfg.Store, clock: clock, logger: logger}, nil
}

// DocumentRecord carries the integrity-relevant fields of an uploaded
// document. The internal storage path is deliberately absent: it neither
// belongs in a legal export nor in the tamper-evidence hash.
type DocumentRecord struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	OriginalName   string    `json:"originalName"`
	MimeType       string    `json:"mimeType"`
	FileSize       int64     `json:"fileSize"`
	FileHash       string    `json:"fileHash"`
	UploadedAt     time.Time `json:"uploadedAt"`
	UploadedBy     string    `json:"uploadedBy"`
	UploadedByName string    `json:"uploadedByName"`
}

// EntityIDRecord names the entities a package covers, with the primary
// entity resolved by priority QUOTE > ORDER > JOB.
type EntityIDRecord struct {
	QuoteID           string            `json:"quoteId,omitempty"`
	OrderID           string            `json:"orderId,omitempty"`
	JobID             string            `json:"jobId,omitempty"`
	PrimaryEntityID   string            `json:"primaryEntityId"`
	PrimaryEntityType domain.EntityType `json:"primaryEntityType"`
}

// Metadata describes a generated package, including its SHA-256 content
// fingerprint.
type Metadata struct {
	GeneratedAt         time.Time      `json:"generatedAt"`
	GeneratedBy         string         `json:"generatedBy"`
	PackageHash         string         `json:"packageHash"`
	TotalHistoryEntries int            `json:"totalHistoryEntries"`
	TotalDocuments      int            `json:"totalDocuments"`
	EntityIDs           EntityIDRecord `json:"entityIds"`
}

// Package is the ephemeral evidence aggregate. It is never persisted as a
// row; only rendered CSV/PDF artifacts outlive the request.
type Package struct {
	Evidence  audit.CompleteHistory `json:"evidence"`
	Documents []DocumentRecord      `json:"documents"`
	Metadata  Metadata              `json:"metadata"`
}

// BuildPackage reconstructs the complete history for the given ids, gathers
// linked documents, and fingerprints the combined content.
func (s *Service) BuildPackage(ctx context.Context, ids audit.EntityIDs, generatedBy string) (Package, error) {
	history := s.audit.CompleteHistory(ctx, ids)

	documents, err := s.linkedDocuments(ctx, ids)
	if err != nil {
		return Package{}, err
	}

	hash, err := packageHash(history.Timeline, documents)
	if err != nil {
		s.logger.Error("evidence hash generation failed", zap.Error(err))
		return Package{}, err
	}

	if generatedBy == "" {
		generatedBy = audit.SystemActor
	}

	return Package{
		Evidence:  history,
		Documents: documents,
		Metadata: Metadata{
			GeneratedAt:         s.clock().UTC(),
			GeneratedBy:         generatedBy,
			PackageHash:         hash,
			TotalHistoryEntries: len(history.Timeline),
			TotalDocuments:      len(documents),
			EntityIDs: EntityIDRecord{
				QuoteID:           ids.QuoteID,
				OrderID:           ids.OrderID,
				JobID:             ids.JobID,
				PrimaryEntityID:   ids.PrimaryID(),
				PrimaryEntityType: ids.PrimaryType(),
			},
		},
	}, nil
}

// linkedDocuments fetches documents attached to any of the provided ids in
// one OR query. With no ids there is nothing to match, so no query runs.
func (s *Service) linkedDocuments(ctx context.Context, ids audit.EntityIDs) ([]DocumentRecord, error) {
	records := make([]DocumentRecord, 0)
	conditions := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if ids.QuoteID != "" {
		conditions = append(conditions, "quote_id = ?")
		args = append(args, ids.QuoteID)
	}
	if ids.OrderID != "" {
		conditions = append(conditions, "order_id = ?")
		args = append(args, ids.OrderID)
	}
	if ids.JobID != "" {
		conditions = append(conditions, "job_id = ?")
		args = append(args, ids.JobID)
	}
	if len(conditions) == 0 {
		return records, nil
	}

	clause := conditions[0]
	for _, condition := range conditions[1:] {
		clause += " OR " + condition
	}

	var documents []domain.Document
	if err := s.db.WithContext(ctx).Where(clause, args...).
		Order("created_at ASC").Find(&documents).Error; err != nil {
		return nil, err
	}
	for _, document := range documents {
		records = append(records, DocumentRecord{
			ID:             document.ID,
			Name:           document.Name,
			OriginalName:   document.OriginalName,
			MimeType:       document.MimeType,
			FileSize:       document.FileSize,
			FileHash:       document.FileHash,
			UploadedAt:     document.CreatedAt,
			UploadedBy:     document.UploadedBy,
			UploadedByName: document.UploadedByName,
		})
	}
	return records, nil
}

// packageHash canonicalizes the timeline and documents and hashes the
// result. Timestamps become ISO-8601 strings, nested JSON snapshots are
// parsed so key order cannot influence the digest, and the
// privacy-sensitive ipAddress/userAgent fields are excluded from the input.
func packageHash(timeline []audit.Entry, documents []DocumentRecord) (string, error) {
	entries := make([]map[string]any, 0, len(timeline))
	for _, entry := range timeline {
		entries = append(entries, hashableEntry(entry))
	}

	docs := make([]map[string]any, 0, len(documents))
	for _, document := range documents {
		docs = append(docs, map[string]any{
			"id":         document.ID,
			"name":       document.Name,
			"mimeType":   document.MimeType,
			"fileSize":   document.FileSize,
			"fileHash":   document.FileHash,
			"uploadedAt": isoTime(document.UploadedAt),
			"uploadedBy": document.UploadedBy,
		})
	}

	return contentHash(map[string]any{
		"historyTimeline": entries,
		"documents":       docs,
	})
}

func hashableEntry(entry audit.Entry) map[string]any {
	hashable := map[string]any{
		"id":            entry.ID,
		"entityType":    string(entry.EntityType),
		"entityId":      entry.EntityID,
		"changeType":    string(entry.ChangeType),
		"version":       entry.Version,
		"status":        entry.Status,
		"changedBy":     entry.ChangedBy,
		"changedByName": entry.ChangedByName,
		"changeReason":  entry.ChangeReason,
		"data":          jsonTree(entry.Data),
		"createdAt":     isoTime(entry.CreatedAt),
	}
	if entry.CustomerApproved != nil {
		hashable["customerApproved"] = *entry.CustomerApproved
	}
	if entry.ApprovalTimestamp != nil {
		hashable["approvalTimestamp"] = isoTime(*entry.ApprovalTimestamp)
	}
	if len(entry.MaterialChanges) > 0 {
		hashable["materialChanges"] = jsonTree(entry.MaterialChanges)
	}
	if entry.ProgressNotes != "" {
		hashable["progressNotes"] = entry.ProgressNotes
	}
	if len(entry.Attachments) > 0 {
		hashable["attachments"] = jsonTree(entry.Attachments)
	}
	return hashable
}

// jsonTree parses raw snapshot JSON into generic values so the canonical
// serializer can sort its keys. Malformed snapshots fall back to the raw
// string so they still contribute to the digest.
func jsonTree(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return string(raw)
	}
	return tree
}

func isoTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}
