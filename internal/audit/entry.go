package audit

import (
	"encoding/json"
	"time"

	"github.com/fabworks/fabops/backend/internal/domain"
)

// Entry is the tagged-union view over the three history tables. The
// EntityType tag identifies the source table; the extras fields are set only
// for the entity types that carry them.
type Entry struct {
	EntityType        domain.EntityType `json:"entityType"`
	ID                string            `json:"id"`
	EntityID          string            `json:"entityId"`
	ChangeType        domain.ChangeType `json:"changeType"`
	Version           int64             `json:"version"`
	Status            string            `json:"status"`
	Data              json.RawMessage   `json:"data"`
	ChangedBy         string            `json:"changedBy"`
	ChangedByName     string            `json:"changedByName,omitempty"`
	ChangeReason      string            `json:"changeReason,omitempty"`
	IPAddress         string            `json:"ipAddress,omitempty"`
	UserAgent         string            `json:"userAgent,omitempty"`
	CustomerApproved  *bool             `json:"customerApproved,omitempty"`
	ApprovalTimestamp *time.Time        `json:"approvalTimestamp,omitempty"`
	MaterialChanges   json.RawMessage   `json:"materialChanges,omitempty"`
	ProgressNotes     string            `json:"progressNotes,omitempty"`
	Attachments       json.RawMessage   `json:"attachments,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
}

func entryFromQuoteRow(row domain.QuoteHistory) Entry {
	return Entry{
		EntityType:    domain.EntityQuote,
		ID:            row.ID,
		EntityID:      row.QuoteID,
		ChangeType:    row.ChangeType,
		Version:       row.Version,
		Status:        row.Status,
		Data:          rawJSON(row.Data),
		ChangedBy:     row.ChangedBy,
		ChangedByName: row.ChangedByName,
		ChangeReason:  row.ChangeReason,
		IPAddress:     row.IPAddress,
		UserAgent:     row.UserAgent,
		CreatedAt:     row.CreatedAt,
	}
}

func entryFromOrderRow(row domain.OrderHistory) Entry {
	return Entry{
		EntityType:        domain.EntityOrder,
		ID:                row.ID,
		EntityID:          row.OrderID,
		ChangeType:        row.ChangeType,
		Version:           row.Version,
		Status:            row.Status,
		Data:              rawJSON(row.Data),
		ChangedBy:         row.ChangedBy,
		ChangedByName:     row.ChangedByName,
		ChangeReason:      row.ChangeReason,
		IPAddress:         row.IPAddress,
		UserAgent:         row.UserAgent,
		CustomerApproved:  row.CustomerApproved,
		ApprovalTimestamp: row.ApprovalTimestamp,
		CreatedAt:         row.CreatedAt,
	}
}

func entryFromJobRow(row domain.JobHistory) Entry {
	return Entry{
		EntityType:      domain.EntityJob,
		ID:              row.ID,
		EntityID:        row.JobID,
		ChangeType:      row.ChangeType,
		Version:         row.Version,
		Status:          row.Status,
		Data:            rawJSON(row.Data),
		ChangedBy:       row.ChangedBy,
		ChangedByName:   row.ChangedByName,
		ChangeReason:    row.ChangeReason,
		IPAddress:       row.IPAddress,
		UserAgent:       row.UserAgent,
		MaterialChanges: rawJSON(row.MaterialChanges),
		ProgressNotes:   row.ProgressNotes,
		Attachments:     rawJSON(row.Attachments),
		CreatedAt:       row.CreatedAt,
	}
}

func rawJSON(value string) json.RawMessage {
	if value == "" {
		return nil
	}
	return json.RawMessage(value)
}
