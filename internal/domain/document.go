package domain

import "time"

// Document is an uploaded file linked to a quote, order, or job. The
// storage path stays internal; evidence exports carry only the integrity
// fields (name, mime type, size, content hash, upload metadata).
type Document struct {
	ID             string    `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	QuoteID        *string   `gorm:"column:quote_id;size:190;index:idx_documents_quote" json:"quoteId,omitempty"`
	OrderID        *string   `gorm:"column:order_id;size:190;index:idx_documents_order" json:"orderId,omitempty"`
	JobID          *string   `gorm:"column:job_id;size:190;index:idx_documents_job" json:"jobId,omitempty"`
	Name           string    `gorm:"column:name;size:255;not null" json:"name"`
	OriginalName   string    `gorm:"column:original_name;size:255;not null;default:''" json:"originalName"`
	MimeType       string    `gorm:"column:mime_type;size:128;not null;default:''" json:"mimeType"`
	FileSize       int64     `gorm:"column:file_size;not null;default:0" json:"fileSize"`
	FileHash       string    `gorm:"column:file_hash;size:128;not null;default:''" json:"fileHash"`
	StoragePath    string    `gorm:"column:storage_path;size:512;not null;default:''" json:"-"`
	UploadedBy     string    `gorm:"column:uploaded_by;size:190;not null;default:''" json:"uploadedBy"`
	UploadedByName string    `gorm:"column:uploaded_by_name;size:190;not null;default:''" json:"uploadedByName"`
	CreatedAt      time.Time `gorm:"column:created_at;not null" json:"createdAt"`
}

// TableName provides the explicit table binding for GORM.
func (Document) TableName() string {
	return "documents"
}
