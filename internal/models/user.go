package models

import "time"

type UserRole string

const (
	RoleSuperAdmin  UserRole = "super_admin"
	RoleTenantAdmin UserRole = "tenant_admin"
	RoleStaff       UserRole = "staff"
)

func (r UserRole) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleTenantAdmin, RoleStaff:
		return true
	}
	return false
}

type User struct {
	ID           uint `gorm:"primaryKey"`
	TenantID     *uint
	Tenant       *Tenant
	Name         string   `gorm:"size:100;not null"`
	Email        string   `gorm:"size:100;uniqueIndex;not null"`
	PasswordHash string   `gorm:"size:255;not null"`
	Role         UserRole `gorm:"size:20;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
