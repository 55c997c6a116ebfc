package domain

import "time"

// OrderStatus enumerates the order lifecycle states.
type OrderStatus string

const (
	OrderStatusPending      OrderStatus = "PENDING"
	OrderStatusConfirmed    OrderStatus = "CONFIRMED"
	OrderStatusInProduction OrderStatus = "IN_PRODUCTION"
	OrderStatusCompleted    OrderStatus = "COMPLETED"
	OrderStatusCancelled    OrderStatus = "CANCELLED"
)

// Order is a confirmed piece of work, usually converted from a quote.
type Order struct {
	ID                string      `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	OrderReference    string      `gorm:"column:order_reference;size:64;not null;uniqueIndex:idx_orders_reference" json:"orderReference"`
	Status            OrderStatus `gorm:"column:status;size:32;not null" json:"status"`
	CurrentVersion    int64       `gorm:"column:current_version;not null;default:0" json:"currentVersion"`
	QuoteID           *string     `gorm:"column:quote_id;size:190" json:"quoteId"`
	CustomerID        string      `gorm:"column:customer_id;size:190;not null" json:"customerId"`
	Customer          Customer    `gorm:"foreignKey:CustomerID" json:"customer"`
	Documents         []Document  `gorm:"foreignKey:OrderID" json:"documents"`
	CustomerApproved  bool        `gorm:"column:customer_approved;not null;default:false" json:"customerApproved"`
	ApprovalTimestamp *time.Time  `gorm:"column:approval_timestamp" json:"approvalTimestamp,omitempty"`
	CreatedBy         string      `gorm:"column:created_by;size:190;not null;default:''" json:"createdBy"`
	Notes             string      `gorm:"column:notes;type:text;not null;default:''" json:"notes"`
	Total             float64     `gorm:"column:total;not null;default:0" json:"total"`
	CreatedAt         time.Time   `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt         time.Time   `gorm:"column:updated_at;not null" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Order) TableName() string {
	return "orders"
}
