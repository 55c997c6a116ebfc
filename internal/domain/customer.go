package domain

import "time"

// Customer is the relation target snapshotted alongside quotes and orders.
type Customer struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	Name      string    `gorm:"column:name;size:190;not null" json:"name"`
	Company   string    `gorm:"column:company;size:190;not null;default:''" json:"company"`
	Email     string    `gorm:"column:email;size:190;not null;default:''" json:"email"`
	Phone     string    `gorm:"column:phone;size:64;not null;default:''" json:"phone"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Customer) TableName() string {
	return "customers"
}

// Material is a stock item referenced by quote lines and job allocations.
type Material struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	Code      string    `gorm:"column:code;size:64;not null;default:''" json:"code"`
	Name      string    `gorm:"column:name;size:190;not null" json:"name"`
	Unit      string    `gorm:"column:unit;size:32;not null;default:''" json:"unit"`
	UnitCost  float64   `gorm:"column:unit_cost;not null;default:0" json:"unitCost"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Material) TableName() string {
	return "materials"
}
