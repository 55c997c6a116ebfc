package domain

import "time"

// EntityType tags a history entry with the table it originated from.
type EntityType string

const (
	EntityQuote   EntityType = "QUOTE"
	EntityOrder   EntityType = "ORDER"
	EntityJob     EntityType = "JOB"
	EntityUnknown EntityType = "UNKNOWN"
)

// ChangeType categorizes an audited change. The set is open ended; only the
// version-bumping members are enumerated exhaustively.
type ChangeType string

const (
	ChangeCreate           ChangeType = "CREATE"
	ChangeUpdate           ChangeType = "UPDATE"
	ChangeStatusChange     ChangeType = "STATUS_CHANGE"
	ChangeApproved         ChangeType = "APPROVED"
	ChangeRejected         ChangeType = "REJECTED"
	ChangeClone            ChangeType = "CLONE"
	ChangeConvert          ChangeType = "CONVERT"
	ChangeDocumentUploaded ChangeType = "DOCUMENT_UPLOADED"
	ChangeMaterialAdded    ChangeType = "MATERIAL_ADDED"
	ChangeMaterialRemoved  ChangeType = "MATERIAL_REMOVED"
	ChangeMaterialUpdated  ChangeType = "MATERIAL_UPDATED"
)

var quoteOrderVersionBumps = map[ChangeType]struct{}{
	ChangeCreate:           {},
	ChangeUpdate:           {},
	ChangeStatusChange:     {},
	ChangeApproved:         {},
	ChangeRejected:         {},
	ChangeClone:            {},
	ChangeConvert:          {},
	ChangeDocumentUploaded: {},
}

var jobVersionBumps = map[ChangeType]struct{}{
	ChangeCreate:           {},
	ChangeUpdate:           {},
	ChangeStatusChange:     {},
	ChangeMaterialAdded:    {},
	ChangeMaterialRemoved:  {},
	ChangeMaterialUpdated:  {},
	ChangeDocumentUploaded: {},
}

// VersionBumps reports whether the change type increments the entity's
// current version counter for the given entity type.
func VersionBumps(entityType EntityType, changeType ChangeType) bool {
	switch entityType {
	case EntityQuote, EntityOrder:
		_, ok := quoteOrderVersionBumps[changeType]
		return ok
	case EntityJob:
		_, ok := jobVersionBumps[changeType]
		return ok
	default:
		return false
	}
}

// QuoteHistory is an append-only snapshot of a quote at the moment of an
// audited change. Rows are never updated or deleted.
type QuoteHistory struct {
	ID            string     `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	QuoteID       string     `gorm:"column:quote_id;size:190;not null;index:idx_quote_history_quote" json:"quoteId"`
	ChangeType    ChangeType `gorm:"column:change_type;size:64;not null" json:"changeType"`
	Version       int64      `gorm:"column:version;not null" json:"version"`
	Status        string     `gorm:"column:status;size:32;not null" json:"status"`
	Data          string     `gorm:"column:data;type:text;not null" json:"data"`
	ChangedBy     string     `gorm:"column:changed_by;size:190;not null" json:"changedBy"`
	ChangedByName string     `gorm:"column:changed_by_name;size:190;not null;default:''" json:"changedByName"`
	ChangeReason  string     `gorm:"column:change_reason;type:text;not null;default:''" json:"changeReason"`
	IPAddress     string     `gorm:"column:ip_address;size:64;not null;default:''" json:"ipAddress"`
	UserAgent     string     `gorm:"column:user_agent;size:512;not null;default:''" json:"userAgent"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null;index:idx_quote_history_created" json:"createdAt"`
}

// TableName provides the explicit table binding for GORM.
func (QuoteHistory) TableName() string {
	return "quote_history"
}

// OrderHistory mirrors QuoteHistory for orders and carries the customer
// approval extras captured at append time.
type OrderHistory struct {
	ID                string     `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	OrderID           string     `gorm:"column:order_id;size:190;not null;index:idx_order_history_order" json:"orderId"`
	ChangeType        ChangeType `gorm:"column:change_type;size:64;not null" json:"changeType"`
	Version           int64      `gorm:"column:version;not null" json:"version"`
	Status            string     `gorm:"column:status;size:32;not null" json:"status"`
	Data              string     `gorm:"column:data;type:text;not null" json:"data"`
	ChangedBy         string     `gorm:"column:changed_by;size:190;not null" json:"changedBy"`
	ChangedByName     string     `gorm:"column:changed_by_name;size:190;not null;default:''" json:"changedByName"`
	ChangeReason      string     `gorm:"column:change_reason;type:text;not null;default:''" json:"changeReason"`
	IPAddress         string     `gorm:"column:ip_address;size:64;not null;default:''" json:"ipAddress"`
	UserAgent         string     `gorm:"column:user_agent;size:512;not null;default:''" json:"userAgent"`
	CustomerApproved  *bool      `gorm:"column:customer_approved" json:"customerApproved,omitempty"`
	ApprovalTimestamp *time.Time `gorm:"column:approval_timestamp" json:"approvalTimestamp,omitempty"`
	CreatedAt         time.Time  `gorm:"column:created_at;not null;index:idx_order_history_created" json:"createdAt"`
}

// TableName provides the explicit table binding for GORM.
func (OrderHistory) TableName() string {
	return "order_history"
}

// JobHistory mirrors QuoteHistory for jobs and carries material-change and
// progress extras captured at append time.
type JobHistory struct {
	ID              string     `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	JobID           string     `gorm:"column:job_id;size:190;not null;index:idx_job_history_job" json:"jobId"`
	ChangeType      ChangeType `gorm:"column:change_type;size:64;not null" json:"changeType"`
	Version         int64      `gorm:"column:version;not null" json:"version"`
	Status          string     `gorm:"column:status;size:32;not null" json:"status"`
	Data            string     `gorm:"column:data;type:text;not null" json:"data"`
	ChangedBy       string     `gorm:"column:changed_by;size:190;not null" json:"changedBy"`
	ChangedByName   string     `gorm:"column:changed_by_name;size:190;not null;default:''" json:"changedByName"`
	ChangeReason    string     `gorm:"column:change_reason;type:text;not null;default:''" json:"changeReason"`
	IPAddress       string     `gorm:"column:ip_address;size:64;not null;default:''" json:"ipAddress"`
	UserAgent       string     `gorm:"column:user_agent;size:512;not null;default:''" json:"userAgent"`
	MaterialChanges string     `gorm:"column:material_changes;type:text;not null;default:''" json:"materialChanges"`
	ProgressNotes   string     `gorm:"column:progress_notes;type:text;not null;default:''" json:"progressNotes"`
	Attachments     string     `gorm:"column:attachments;type:text;not null;default:''" json:"attachments"`
	CreatedAt       time.Time  `gorm:"column:created_at;not null;index:idx_job_history_created" json:"createdAt"`
}

// TableName provides the explicit table binding for GORM.
func (JobHistory) TableName() string {
	return "job_history"
}
