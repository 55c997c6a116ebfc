package domain

import "time"

// JobStatus enumerates the shop-floor job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "QUEUED"
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	JobStatusOnHold     JobStatus = "ON_HOLD"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

// Job is a fabrication work item scheduled against an order.
type Job struct {
	ID             string        `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	JobReference   string        `gorm:"column:job_reference;size:64;not null;uniqueIndex:idx_jobs_reference" json:"jobReference"`
	Status         JobStatus     `gorm:"column:status;size:32;not null" json:"status"`
	CurrentVersion int64         `gorm:"column:current_version;not null;default:0" json:"currentVersion"`
	OrderID        *string       `gorm:"column:order_id;size:190" json:"orderId"`
	Materials      []JobMaterial `gorm:"foreignKey:JobID" json:"materials"`
	Documents      []Document    `gorm:"foreignKey:JobID" json:"documents"`
	AssignedTo     string        `gorm:"column:assigned_to;size:190;not null;default:''" json:"assignedTo"`
	ProgressNotes  string        `gorm:"column:progress_notes;type:text;not null;default:''" json:"progressNotes"`
	CreatedBy      string        `gorm:"column:created_by;size:190;not null;default:''" json:"createdBy"`
	CreatedAt      time.Time     `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt      time.Time     `gorm:"column:updated_at;not null" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Job) TableName() string {
	return "jobs"
}

// JobMaterial records a material allocation against a job.
type JobMaterial struct {
	ID         string   `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	JobID      string   `gorm:"column:job_id;size:190;not null;index:idx_job_materials_job" json:"jobId"`
	MaterialID string   `gorm:"column:material_id;size:190;not null" json:"materialId"`
	Material   Material `gorm:"foreignKey:MaterialID" json:"material"`
	Quantity   float64  `gorm:"column:quantity;not null" json:"quantity"`
	Unit       string   `gorm:"column:unit;size:32;not null;default:''" json:"unit"`
}

// TableName provides the explicit table binding for GORM.
func (JobMaterial) TableName() string {
	return "job_materials"
}
