package domain

import "time"

// QuoteStatus enumerates the quote lifecycle states.
type QuoteStatus string

const (
	QuoteStatusDraft     QuoteStatus = "DRAFT"
	QuoteStatusSent      QuoteStatus = "SENT"
	QuoteStatusApproved  QuoteStatus = "APPROVED"
	QuoteStatusDeclined  QuoteStatus = "DECLINED"
	QuoteStatusExpired   QuoteStatus = "EXPIRED"
	QuoteStatusConverted QuoteStatus = "CONVERTED"
)

// Quote is one row of a quote version chain. All rows sharing a
// QuoteReference form the chain; exactly one of them carries
// IsLatestVersion at any time, and VersionNumber values ascend
// contiguously from the row whose ParentQuoteID is nil.
type Quote struct {
	ID              string      `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	QuoteReference  string      `gorm:"column:quote_reference;size:64;not null;index:idx_quotes_reference,priority:1" json:"quoteReference"`
	VersionNumber   int         `gorm:"column:version_number;not null;default:1" json:"versionNumber"`
	IsLatestVersion bool        `gorm:"column:is_latest_version;not null;default:true;index:idx_quotes_reference,priority:2" json:"isLatestVersion"`
	ParentQuoteID   *string     `gorm:"column:parent_quote_id;size:190" json:"parentQuoteId"`
	ChangeReason    string      `gorm:"column:change_reason;type:text;not null;default:''" json:"changeReason"`
	Status          QuoteStatus `gorm:"column:status;size:32;not null" json:"status"`
	CurrentVersion  int64       `gorm:"column:current_version;not null;default:0" json:"currentVersion"`
	CustomerID      string      `gorm:"column:customer_id;size:190;not null" json:"customerId"`
	Customer        Customer    `gorm:"foreignKey:CustomerID" json:"customer"`
	Items           []QuoteItem `gorm:"foreignKey:QuoteID" json:"items"`
	Documents       []Document  `gorm:"foreignKey:QuoteID" json:"documents"`
	CreatedBy       string      `gorm:"column:created_by;size:190;not null;default:''" json:"createdBy"`
	Notes           string      `gorm:"column:notes;type:text;not null;default:''" json:"notes"`
	Subtotal        float64     `gorm:"column:subtotal;not null;default:0" json:"subtotal"`
	Tax             float64     `gorm:"column:tax;not null;default:0" json:"tax"`
	Total           float64     `gorm:"column:total;not null;default:0" json:"total"`
	ValidUntil      *time.Time  `gorm:"column:valid_until" json:"validUntil,omitempty"`
	CreatedAt       time.Time   `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt       time.Time   `gorm:"column:updated_at;not null" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Quote) TableName() string {
	return "quotes"
}

// QuoteItem is a priced line on a quote version.
type QuoteItem struct {
	ID          string   `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	QuoteID     string   `gorm:"column:quote_id;size:190;not null;index:idx_quote_items_quote" json:"quoteId"`
	MaterialID  string   `gorm:"column:material_id;size:190;not null" json:"materialId"`
	Material    Material `gorm:"foreignKey:MaterialID" json:"material"`
	Description string   `gorm:"column:description;type:text;not null;default:''" json:"description"`
	Quantity    float64  `gorm:"column:quantity;not null" json:"quantity"`
	UnitPrice   float64  `gorm:"column:unit_price;not null" json:"unitPrice"`
	LineTotal   float64  `gorm:"column:line_total;not null" json:"lineTotal"`
}

// TableName provides the explicit table binding for GORM.
func (QuoteItem) TableName() string {
	return "quote_items"
}
