package models

import "time"

type Lorry struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	TenantID       uint      `gorm:"not null;uniqueIndex:idx_lorries_tenant_reg" json:"tenant_id"`
	RegistrationNo string    `gorm:"size:30;not null;uniqueIndex:idx_lorries_tenant_reg" json:"registration_no"`
	DriverName     string    `gorm:"size:100" json:"driver_name"`
	DriverPhone    string    `gorm:"size:50" json:"driver_phone"`
	CapacityCases  int       `gorm:"not null;default:0" json:"capacity_cases"`
	Active         bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
