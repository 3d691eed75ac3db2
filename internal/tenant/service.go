package tenant

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"depot-backend/internal/auth"
	"depot-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrDuplicate   = errors.New("tenant name, slug or admin email already in use")
	ErrInvalidSlug = errors.New("slug may only contain lowercase letters, digits and dashes")
	ErrHasActivity = errors.New("tenant has recorded transactions and cannot be deleted; suspend it instead")
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// DefaultCategories are created for every new tenant.
var DefaultCategories = []string{"Fuel", "Maintenance", "Salaries", "Rent", "Utilities", "Other"}

type ProvisionInput struct {
	Name          string
	Slug          string
	ContactEmail  string
	Phone         string
	AdminName     string
	AdminEmail    string
	AdminPassword string
}

type ProvisionResult struct {
	Tenant models.Tenant
	Admin  models.User
}

// Slugify lowercases name and joins its alphanumeric runs with dashes.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
		default:
			dash = true
		}
	}
	return b.String()
}

// Provision creates a tenant, its first admin and the default expense categories atomically.
func Provision(db *gorm.DB, in ProvisionInput) (*ProvisionResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Slug = strings.TrimSpace(in.Slug)
	if in.Slug == "" {
		in.Slug = Slugify(in.Name)
	}
	if !slugPattern.MatchString(in.Slug) {
		return nil, ErrInvalidSlug
	}
	in.AdminEmail = auth.NormalizeEmail(in.AdminEmail)

	hash, err := auth.HashPassword(in.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("tenant: hash password: %w", err)
	}

	var res ProvisionResult
	err = db.Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Tenant{}).
			Where("name = ? OR slug = ?", in.Name, in.Slug).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicate
		}
		if err := tx.Model(&models.User{}).Where("email = ?", in.AdminEmail).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicate
		}

		res.Tenant = models.Tenant{
			PublicID:     uuid.NewString(),
			Name:         in.Name,
			Slug:         in.Slug,
			ContactEmail: strings.TrimSpace(in.ContactEmail),
			Phone:        strings.TrimSpace(in.Phone),
			Status:       models.TenantStatusActive,
		}
		if err := tx.Create(&res.Tenant).Error; err != nil {
			return fmt.Errorf("tenant: create: %w", err)
		}

		res.Admin = models.User{
			TenantID:     &res.Tenant.ID,
			Name:         strings.TrimSpace(in.AdminName),
			Email:        in.AdminEmail,
			PasswordHash: hash,
			Role:         models.RoleTenantAdmin,
		}
		if err := tx.Create(&res.Admin).Error; err != nil {
			return fmt.Errorf("tenant: create admin: %w", err)
		}

		cats := make([]models.ExpenseCategory, 0, len(DefaultCategories))
		for _, name := range DefaultCategories {
			cats = append(cats, models.ExpenseCategory{TenantID: res.Tenant.ID, Name: name})
		}
		if err := tx.Create(&cats).Error; err != nil {
			return fmt.Errorf("tenant: create categories: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// SetStatus suspends or reactivates a tenant.
func SetStatus(db *gorm.DB, tenantID uint, status models.TenantStatus) (*models.Tenant, error) {
	var t models.Tenant
	if err := db.First(&t, tenantID).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&t).Update("status", status).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// Delete removes a tenant with no recorded transactions, together with all of its rows.
func Delete(db *gorm.DB, tenantID uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var t models.Tenant
		if err := tx.First(&t, tenantID).Error; err != nil {
			return err
		}

		var n int64
		if err := tx.Model(&models.Transaction{}).Where("tenant_id = ?", tenantID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrHasActivity
		}

		owned := []any{
			&models.ScaleReading{}, &models.Scale{}, &models.Return{},
			&models.ExpensePayment{}, &models.Expense{}, &models.ExpenseCategory{},
			&models.Lorry{}, &models.Item{}, &models.AuditLog{}, &models.User{},
		}
		for _, m := range owned {
			if err := tx.Where("tenant_id = ?", tenantID).Delete(m).Error; err != nil {
				return fmt.Errorf("tenant: delete %T: %w", m, err)
			}
		}
		return tx.Delete(&t).Error
	})
}
