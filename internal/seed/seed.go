// Package seed loads demo tenants and master data from a YAML file.
package seed

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"depot-backend/internal/auth"
	"depot-backend/internal/models"
	"depot-backend/internal/tenant"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

type Account struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

type Item struct {
	SKU            string  `yaml:"sku"`
	Name           string  `yaml:"name"`
	SizeLabel      string  `yaml:"size_label"`
	BottlesPerCase int     `yaml:"bottles_per_case"`
	CasePrice      float64 `yaml:"case_price"`
	BottlePrice    float64 `yaml:"bottle_price"`
	StockBottles   int     `yaml:"stock_bottles"`
	ReorderLevel   int     `yaml:"reorder_level"`
}

type Lorry struct {
	RegistrationNo string `yaml:"registration_no"`
	DriverName     string `yaml:"driver_name"`
	DriverPhone    string `yaml:"driver_phone"`
	CapacityCases  int    `yaml:"capacity_cases"`
}

type Scale struct {
	Serial      string  `yaml:"serial"`
	Name        string  `yaml:"name"`
	ItemSKU     string  `yaml:"item_sku"`
	TareGrams   float64 `yaml:"tare_grams"`
	BottleGrams float64 `yaml:"bottle_grams"`
}

type Tenant struct {
	Name         string   `yaml:"name"`
	Slug         string   `yaml:"slug"`
	ContactEmail string   `yaml:"contact_email"`
	Phone        string   `yaml:"phone"`
	Admin        Account  `yaml:"admin"`
	Categories   []string `yaml:"categories"`
	Items        []Item   `yaml:"items"`
	Lorries      []Lorry  `yaml:"lorries"`
	Scales       []Scale  `yaml:"scales"`
}

type Data struct {
	SuperAdmin *Account `yaml:"super_admin"`
	Tenants    []Tenant `yaml:"tenants"`
}

// Result counts rows created by a run. Rows that already existed are not counted.
type Result struct {
	Tenants    int
	Users      int
	Categories int
	Items      int
	Lorries    int
	Scales     int
}

// Parse decodes seed YAML. Unknown keys are rejected.
func Parse(raw []byte) (*Data, error) {
	var d Data
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("seed: parse: %w", err)
	}
	for i, t := range d.Tenants {
		if strings.TrimSpace(t.Name) == "" {
			return nil, fmt.Errorf("seed: tenant #%d has no name", i+1)
		}
		if t.Admin.Email == "" || t.Admin.Password == "" {
			return nil, fmt.Errorf("seed: tenant %q needs an admin email and password", t.Name)
		}
	}
	return &d, nil
}

// File seeds db from the YAML file at path.
func File(db *gorm.DB, path string) (*Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	d, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return Apply(db, d)
}

// Apply provisions every tenant in d and fills in missing master data. Running it twice is a no-op.
func Apply(db *gorm.DB, d *Data) (*Result, error) {
	var res Result

	if d.SuperAdmin != nil {
		created, err := ensureSuperAdmin(db, *d.SuperAdmin)
		if err != nil {
			return nil, err
		}
		if created {
			res.Users++
		}
	}

	for _, t := range d.Tenants {
		if err := applyTenant(db, t, &res); err != nil {
			return nil, fmt.Errorf("seed: tenant %q: %w", t.Name, err)
		}
	}
	return &res, nil
}

func ensureSuperAdmin(db *gorm.DB, a Account) (bool, error) {
	email := auth.NormalizeEmail(a.Email)
	var n int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&n).Error; err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	hash, err := auth.HashPassword(a.Password)
	if err != nil {
		return false, err
	}
	u := models.User{Name: a.Name, Email: email, PasswordHash: hash, Role: models.RoleSuperAdmin}
	if err := db.Create(&u).Error; err != nil {
		return false, fmt.Errorf("seed: super admin: %w", err)
	}
	return true, nil
}

func applyTenant(db *gorm.DB, t Tenant, res *Result) error {
	slug := t.Slug
	if slug == "" {
		slug = tenant.Slugify(t.Name)
	}

	var existing models.Tenant
	err := db.Where("slug = ?", slug).First(&existing).Error
	switch {
	case err == nil:
		zap.L().Debug("seed tenant exists", zap.String("slug", slug))
	case errors.Is(err, gorm.ErrRecordNotFound):
		out, err := tenant.Provision(db, tenant.ProvisionInput{
			Name:          t.Name,
			Slug:          slug,
			ContactEmail:  t.ContactEmail,
			Phone:         t.Phone,
			AdminName:     t.Admin.Name,
			AdminEmail:    t.Admin.Email,
			AdminPassword: t.Admin.Password,
		})
		if err != nil {
			return err
		}
		existing = out.Tenant
		res.Tenants++
		res.Users++
		res.Categories += len(tenant.DefaultCategories)
	default:
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		tenantID := existing.ID

		for _, name := range t.Categories {
			name = strings.TrimSpace(name)
			var n int64
			if err := tx.Model(&models.ExpenseCategory{}).
				Where("tenant_id = ? AND LOWER(name) = ?", tenantID, strings.ToLower(name)).
				Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				continue
			}
			if err := tx.Create(&models.ExpenseCategory{TenantID: tenantID, Name: name}).Error; err != nil {
				return err
			}
			res.Categories++
		}

		skus := make(map[string]uint, len(t.Items))
		for _, in := range t.Items {
			var item models.Item
			err := tx.Where("tenant_id = ? AND sku = ?", tenantID, in.SKU).First(&item).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				if in.BottlesPerCase <= 0 {
					return fmt.Errorf("item %s: bottles_per_case must be positive", in.SKU)
				}
				item = models.Item{
					TenantID:       tenantID,
					SKU:            in.SKU,
					Name:           in.Name,
					SizeLabel:      in.SizeLabel,
					BottlesPerCase: in.BottlesPerCase,
					CasePrice:      in.CasePrice,
					BottlePrice:    in.BottlePrice,
					StockBottles:   in.StockBottles,
					ReorderLevel:   in.ReorderLevel,
					Active:         true,
				}
				if err := tx.Create(&item).Error; err != nil {
					return err
				}
				res.Items++
			} else if err != nil {
				return err
			}
			skus[in.SKU] = item.ID
		}

		for _, in := range t.Lorries {
			var n int64
			if err := tx.Model(&models.Lorry{}).
				Where("tenant_id = ? AND registration_no = ?", tenantID, in.RegistrationNo).
				Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				continue
			}
			l := models.Lorry{
				TenantID:       tenantID,
				RegistrationNo: in.RegistrationNo,
				DriverName:     in.DriverName,
				DriverPhone:    in.DriverPhone,
				CapacityCases:  in.CapacityCases,
				Active:         true,
			}
			if err := tx.Create(&l).Error; err != nil {
				return err
			}
			res.Lorries++
		}

		for _, in := range t.Scales {
			var n int64
			if err := tx.Model(&models.Scale{}).Where("serial = ?", in.Serial).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				continue
			}
			s := models.Scale{
				TenantID:    tenantID,
				Serial:      in.Serial,
				Name:        in.Name,
				TareGrams:   in.TareGrams,
				BottleGrams: in.BottleGrams,
			}
			if in.ItemSKU != "" {
				id, ok := skus[in.ItemSKU]
				if !ok {
					return fmt.Errorf("scale %s: unknown item_sku %q", in.Serial, in.ItemSKU)
				}
				s.ItemID = &id
			}
			if err := tx.Create(&s).Error; err != nil {
				return err
			}
			res.Scales++
		}
		return nil
	})
}
