package models

import "time"

type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
)

// Tenant: an isolated customer account. Every business row carries its ID.
type Tenant struct {
	ID           uint         `gorm:"primaryKey"`
	PublicID     string       `gorm:"size:36;uniqueIndex;not null"` // uuid, used outside the API (MQTT relay topics, exports)
	Name         string       `gorm:"size:100;not null;unique"`
	Slug         string       `gorm:"size:60;not null;uniqueIndex"`
	ContactEmail string       `gorm:"size:100"`
	Phone        string       `gorm:"size:50"`
	Status       TenantStatus `gorm:"size:20;not null;default:active"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Users []User
}

func (t Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}
