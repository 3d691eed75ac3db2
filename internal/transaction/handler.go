package transaction

import (
	"errors"
	"fmt"
	"strings"

	"depot-backend/internal/audit"
	"depot-backend/internal/auth"
	"depot-backend/internal/cache"
	"depot-backend/internal/database"
	"depot-backend/internal/httpx"
	"depot-backend/internal/inventory"
	"depot-backend/internal/lorry"
	"depot-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CreateTransactionRequest struct {
	TenantID *uint    `json:"tenant_id"`
	Type     string   `json:"type" validate:"required,oneof=loading unloading sale"`
	LorryID  uint     `json:"lorry_id" validate:"required"`
	ItemID   uint     `json:"item_id" validate:"required"`
	Date     string   `json:"date" validate:"required,datetime=2006-01-02"`
	Cases    int      `json:"cases" validate:"gte=0"`
	Bottles  int      `json:"bottles" validate:"gte=0"`
	Amount   *float64 `json:"amount" validate:"omitempty,gte=0"`
	Note     string   `json:"note" validate:"max=255"`
}

type CreateReturnRequest struct {
	TenantID *uint  `json:"tenant_id"`
	Kind     string `json:"kind" validate:"required,oneof=expiry empty"`
	LorryID  uint   `json:"lorry_id" validate:"required"`
	ItemID   uint   `json:"item_id" validate:"required"`
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	Cases    int    `json:"cases" validate:"gte=0"`
	Bottles  int    `json:"bottles" validate:"gte=0"`
	Note     string `json:"note" validate:"max=255"`
}

type TransactionResponse struct {
	models.Transaction
	RegistrationNo string `json:"registration_no"`
	ItemName       string `json:"item_name"`
	SKU            string `json:"sku"`
	SizeLabel      string `json:"size_label"`
}

type ReturnResponse struct {
	models.Return
	RegistrationNo string `json:"registration_no"`
	ItemName       string `json:"item_name"`
	SKU            string `json:"sku"`
	SizeLabel      string `json:"size_label"`
}

func toTransactionResponse(t models.Transaction) TransactionResponse {
	return TransactionResponse{
		Transaction:    t,
		RegistrationNo: t.Lorry.RegistrationNo,
		ItemName:       t.Item.Name,
		SKU:            t.Item.SKU,
		SizeLabel:      t.Item.SizeLabel,
	}
}

func toReturnResponse(r models.Return) ReturnResponse {
	return ReturnResponse{
		Return:         r,
		RegistrationNo: r.Lorry.RegistrationNo,
		ItemName:       r.Item.Name,
		SKU:            r.Item.SKU,
		SizeLabel:      r.Item.SizeLabel,
	}
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrTransactionNotFound), errors.Is(err, ErrReturnNotFound),
		errors.Is(err, inventory.ErrItemNotFound), errors.Is(err, lorry.ErrLorryNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrExceedsLorryStock),
		errors.Is(err, ErrNegativeEmpties):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, ErrInactiveLorry), errors.Is(err, ErrInactiveItem),
		errors.Is(err, ErrEmptyQuantity), errors.Is(err, ErrNegativeQuantity):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return err
}

// listQuery applies the lorry_id / item_id / from / to filters shared by both logs.
func listQuery(c *fiber.Ctx, tenantID uint) (*gorm.DB, error) {
	dbq := database.DB.Preload("Lorry").Preload("Item").Where("tenant_id = ?", tenantID)

	if id, ok, err := httpx.QueryUint(c, "lorry_id"); err != nil {
		return nil, err
	} else if ok {
		dbq = dbq.Where("lorry_id = ?", id)
	}
	if id, ok, err := httpx.QueryUint(c, "item_id"); err != nil {
		return nil, err
	} else if ok {
		dbq = dbq.Where("item_id = ?", id)
	}
	from, err := httpx.QueryDate(c, "from")
	if err != nil {
		return nil, err
	}
	to, err := httpx.QueryDate(c, "to")
	if err != nil {
		return nil, err
	}
	if from != nil && to != nil && from.After(*to) {
		return nil, fiber.NewError(fiber.StatusBadRequest, "from cannot be after to")
	}
	if from != nil {
		dbq = dbq.Where("date >= ?", *from)
	}
	if to != nil {
		dbq = dbq.Where("date <= ?", httpx.EndOfDay(*to))
	}
	return dbq.Order("date DESC, id DESC"), nil
}

// POST /api/transactions
func CreateTransactionHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateTransactionRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}
		tenantID, err := auth.ResolveTenantFromBody(c, body.TenantID)
		if err != nil {
			return err
		}
		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		date, err := httpx.ParseDate(body.Date, "date")
		if err != nil {
			return err
		}

		var t models.Transaction
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			t, err = Record(tx, tenantID, Input{
				Type:      models.TransactionType(body.Type),
				LorryID:   body.LorryID,
				ItemID:    body.ItemID,
				Date:      date,
				Cases:     body.Cases,
				Bottles:   body.Bottles,
				Amount:    body.Amount,
				Note:      strings.TrimSpace(body.Note),
				CreatedBy: actor.UserID,
			})
			if err != nil {
				return err
			}
			return audit.WriteLog(audit.LogOptions{
				DB:          tx,
				TenantID:    &tenantID,
				UserID:      actor.UserID,
				UserName:    actor.Name,
				EntityType:  EntityTransaction,
				EntityID:    t.ID,
				Action:      models.AuditActionCreate,
				Description: fmt.Sprintf("Transaction recorded: %s of %d bottles", t.Type, t.TotalBottles),
				After:       t,
			})
		})
		if err != nil {
			return mapError(err)
		}

		database.DB.Preload("Lorry").Preload("Item").First(&t, t.ID)
		cache.Invalidate(tenantID)
		return c.Status(fiber.StatusCreated).JSON(toTransactionResponse(t))
	}
}

// GET /api/transactions?type=&lorry_id=&item_id=&from=&to=
func ListTransactionsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := auth.ResolveTenantFromQuery(c)
		if err != nil {
			return err
		}
		dbq, err := listQuery(c, tenantID)
		if err != nil {
			return err
		}
		if typ := c.Query("type"); typ != "" {
			if !models.TransactionType(typ).Valid() {
				return fiber.NewError(fiber.StatusBadRequest, "type must be one of: loading unloading sale")
			}
			dbq = dbq.Where("type = ?", typ)
		}

		var txs []models.Transaction
		if err := dbq.Find(&txs).Error; err != nil {
			return err
		}
		resp := make([]TransactionResponse, 0, len(txs))
		for _, t := range txs {
			resp = append(resp, toTransactionResponse(t))
		}
		return c.JSON(resp)
	}
}

// GET /api/transactions/:id
func GetTransactionHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := auth.ResolveTenantFromQuery(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		t, err := FindTransaction(database.DB.Preload("Lorry").Preload("Item"), tenantID, id)
		if err != nil {
			return mapError(err)
		}
		return c.JSON(toTransactionResponse(t))
	}
}

// DELETE /api/transactions/:id
func DeleteTransactionHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := auth.ResolveTenantFromQuery(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			t, err := FindTransaction(tx, tenantID, id)
			if err != nil {
				return err
			}
			if err := Reverse(tx, t); err != nil {
				return err
			}
			return audit.WriteLog(audit.LogOptions{
				DB:          tx,
				TenantID:    &tenantID,
				UserID:      actor.UserID,
				UserName:    actor.Name,
				EntityType:  EntityTransaction,
				EntityID:    t.ID,
				Action:      models.AuditActionDelete,
				Description: fmt.Sprintf("Transaction deleted: %s of %d bottles", t.Type, t.TotalBottles),
				Before:      t,
			})
		})
		if err != nil {
			return mapError(err)
		}

		cache.Invalidate(tenantID)
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// POST /api/returns
func CreateReturnHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateReturnRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}
		tenantID, err := auth.ResolveTenantFromBody(c, body.TenantID)
		if err != nil {
			return err
		}
		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		date, err := httpx.ParseDate(body.Date, "date")
		if err != nil {
			return err
		}

		var r models.Return
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			r, err = RecordReturn(tx, tenantID, ReturnInput{
				Kind:      models.ReturnKind(body.Kind),
				LorryID:   body.LorryID,
				ItemID:    body.ItemID,
				Date:      date,
				Cases:     body.Cases,
				Bottles:   body.Bottles,
				Note:      strings.TrimSpace(body.Note),
				CreatedBy: actor.UserID,
			})
			if err != nil {
				return err
			}
			return audit.WriteLog(audit.LogOptions{
				DB:          tx,
				TenantID:    &tenantID,
				UserID:      actor.UserID,
				UserName:    actor.Name,
				EntityType:  EntityReturn,
				EntityID:    r.ID,
				Action:      models.AuditActionCreate,
				Description: fmt.Sprintf("Return recorded: %s, %d bottles", r.Kind, r.TotalBottles),
				After:       r,
			})
		})
		if err != nil {
			return mapError(err)
		}

		database.DB.Preload("Lorry").Preload("Item").First(&r, r.ID)
		cache.Invalidate(tenantID)
		return c.Status(fiber.StatusCreated).JSON(toReturnResponse(r))
	}
}

// GET /api/returns?kind=&lorry_id=&item_id=&from=&to=
func ListReturnsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := auth.ResolveTenantFromQuery(c)
		if err != nil {
			return err
		}
		dbq, err := listQuery(c, tenantID)
		if err != nil {
			return err
		}
		if kind := c.Query("kind"); kind != "" {
			if !models.ReturnKind(kind).Valid() {
				return fiber.NewError(fiber.StatusBadRequest, "kind must be one of: expiry empty")
			}
			dbq = dbq.Where("kind = ?", kind)
		}

		var returns []models.Return
		if err := dbq.Find(&returns).Error; err != nil {
			return err
		}
		resp := make([]ReturnResponse, 0, len(returns))
		for _, r := range returns {
			resp = append(resp, toReturnResponse(r))
		}
		return c.JSON(resp)
	}
}

// DELETE /api/returns/:id
func DeleteReturnHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := auth.ResolveTenantFromQuery(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			r, err := FindReturn(tx, tenantID, id)
			if err != nil {
				return err
			}
			if err := ReverseReturn(tx, r); err != nil {
				return err
			}
			return audit.WriteLog(audit.LogOptions{
				DB:          tx,
				TenantID:    &tenantID,
				UserID:      actor.UserID,
				UserName:    actor.Name,
				EntityType:  EntityReturn,
				EntityID:    r.ID,
				Action:      models.AuditActionDelete,
				Description: fmt.Sprintf("Return deleted: %s, %d bottles", r.Kind, r.TotalBottles),
				Before:      r,
			})
		})
		if err != nil {
			return mapError(err)
		}

		cache.Invalidate(tenantID)
		return c.SendStatus(fiber.StatusNoContent)
	}
}
