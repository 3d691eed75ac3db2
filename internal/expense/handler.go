package expense

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"depot-backend/internal/audit"
	"depot-backend/internal/auth"
	"depot-backend/internal/cache"
	"depot-backend/internal/database"
	"depot-backend/internal/httpx"
	"depot-backend/internal/models"
	"depot-backend/internal/report"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CreateExpenseRequest struct {
	TenantID    *uint   `json:"tenant_id"`
	CategoryID  uint    `json:"category_id" validate:"required"`
	LorryID     *uint   `json:"lorry_id"`
	Date        string  `json:"date" validate:"required,datetime=2006-01-02"`
	DueDate     string  `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Vendor      string  `json:"vendor" validate:"max=100"`
	Amount      float64 `json:"amount" validate:"gt=0"`
	PaidAmount  float64 `json:"paid_amount" validate:"gte=0"`
	Description string  `json:"description" validate:"max=255"`
}

type UpdateExpenseRequest struct {
	CategoryID  *uint    `json:"category_id"`
	LorryID     *uint    `json:"lorry_id"`
	ClearLorry  bool     `json:"clear_lorry"`
	Date        *string  `json:"date" validate:"omitempty,datetime=2006-01-02"`
	DueDate     *string  `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Vendor      *string  `json:"vendor" validate:"omitempty,max=100"`
	Amount      *float64 `json:"amount" validate:"omitempty,gt=0"`
	Description *string  `json:"description" validate:"omitempty,max=255"`
}

type AddPaymentRequest struct {
	Date   string  `json:"date" validate:"required,datetime=2006-01-02"`
	Amount float64 `json:"amount" validate:"gt=0"`
	Note   string  `json:"note" validate:"max=255"`
}

type ExpenseResponse struct {
	ID          uint                 `json:"id"`
	TenantID    uint                 `json:"tenant_id"`
	CategoryID  uint                 `json:"category_id"`
	Category    string               `json:"category"`
	LorryID     *uint                `json:"lorry_id"`
	Date        string               `json:"date"`
	DueDate     *string              `json:"due_date"`
	Vendor      string               `json:"vendor"`
	Amount      float64              `json:"amount"`
	PaidAmount  float64              `json:"paid_amount"`
	Outstanding float64              `json:"outstanding"`
	Status      models.ExpenseStatus `json:"status"`
	Overdue     bool                 `json:"overdue"`
	Description string               `json:"description"`
}

type PaymentResponse struct {
	ID     uint    `json:"id"`
	Date   string  `json:"date"`
	Amount float64 `json:"amount"`
	Note   string  `json:"note"`
}

type SummaryResponse struct {
	From        string               `json:"from"`
	To          string               `json:"to"`
	Total       float64              `json:"total"`
	Paid        float64              `json:"paid"`
	Outstanding float64              `json:"outstanding"`
	PaidPct     float64              `json:"paid_pct"`
	ByCategory  []report.CategoryRow `json:"by_category"`
	ByStatus    []report.StatusRow   `json:"by_status"`
}

func toResponse(e models.Expense, now time.Time) ExpenseResponse {
	r := ExpenseResponse{
		ID:          e.ID,
		TenantID:    e.TenantID,
		CategoryID:  e.CategoryID,
		Category:    e.Category.Name,
		LorryID:     e.LorryID,
		Date:        e.Date.UTC().Format(httpx.DateLayout),
		Vendor:      e.Vendor,
		Amount:      e.Amount,
		PaidAmount:  e.PaidAmount,
		Outstanding: roundMoney(e.Outstanding()),
		Status:      e.Status,
		Description: e.Description,
	}
	if e.DueDate != nil {
		s := e.DueDate.UTC().Format(httpx.DateLayout)
		r.DueDate = &s
		r.Overdue = r.Outstanding > 0 && e.DueDate.Before(truncateDay(now))
	}
	return r
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrExpenseNotFound), errors.Is(err, ErrCategoryNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrExpenseCancelled), errors.Is(err, ErrOverpayment),
		errors.Is(err, ErrAmountBelowPaid), errors.Is(err, ErrCategoryInUse),
		errors.Is(err, ErrDuplicateCategory):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, ErrPaidExceedsAmount):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return err
}

func checkLorry(tx *gorm.DB, tenantID uint, lorryID *uint) error {
	if lorryID == nil {
		return nil
	}
	var n int64
	if err := tx.Model(&models.Lorry{}).Where("id = ? AND tenant_id = ?", *lorryID, tenantID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "lorry_id does not belong to this tenant")
	}
	return nil
}

func writeLog(tx *gorm.DB, actor auth.Actor, e models.Expense, action models.AuditAction, desc string, before, after any) error {
	return audit.WriteLog(audit.LogOptions{
		DB:          tx,
		TenantID:    &e.TenantID,
		UserID:      actor.UserID,
		UserName:    actor.Name,
		EntityType:  EntityExpense,
		EntityID:    e.ID,
		Action:      action,
		Description: desc,
		Before:      before,
		After:       after,
	})
}

// POST /api/expenses
func CreateExpenseHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateExpenseRequest
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
		if body.PaidAmount > body.Amount {
			return mapError(ErrPaidExceedsAmount)
		}

		date, err := httpx.ParseDate(body.Date, "date")
		if err != nil {
			return err
		}
		e := models.Expense{
			TenantID:    tenantID,
			CategoryID:  body.CategoryID,
			LorryID:     body.LorryID,
			Date:        date,
			Vendor:      strings.TrimSpace(body.Vendor),
			Amount:      roundMoney(body.Amount),
			Status:      models.ExpenseStatusPending,
			Description: strings.TrimSpace(body.Description),
		}
		if body.DueDate != "" {
			due, err := httpx.ParseDate(body.DueDate, "due_date")
			if err != nil {
				return err
			}
			e.DueDate = &due
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			cat, err := findCategory(tx, tenantID, body.CategoryID)
			if err != nil {
				return err
			}
			if err := checkLorry(tx, tenantID, body.LorryID); err != nil {
				return err
			}
			if err := tx.Omit("Category").Create(&e).Error; err != nil {
				return err
			}
			if body.PaidAmount > 0 {
				if _, err := AddPayment(tx, &e, PaymentInput{Date: date, Amount: body.PaidAmount, Note: "paid on entry"}); err != nil {
					return err
				}
			}
			e.Category = cat

			snap, err := snapshotOf(tx, e)
			if err != nil {
				return err
			}
			return writeLog(tx, actor, e, models.AuditActionCreate,
				fmt.Sprintf("Expense created: %s %.2f", cat.Name, e.Amount), nil, snap)
		})
		if err != nil {
			return mapError(err)
		}

		cache.Invalidate(tenantID)
		return c.Status(fiber.StatusCreated).JSON(toResponse(e, time.Now()))
	}
}

// GET /api/expenses?from=&to=&category_id=&status=&lorry_id=
func ListExpensesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := auth.ResolveTenantFromQuery(c)
		if err != nil {
			return err
		}

		dbq := database.DB.Preload("Category").Where("tenant_id = ?", tenantID)

		from, err := httpx.QueryDate(c, "from")
		if err != nil {
			return err
		}
		if from != nil {
			dbq = dbq.Where("date >= ?", *from)
		}
		to, err := httpx.QueryDate(c, "to")
		if err != nil {
			return err
		}
		if to != nil {
			dbq = dbq.Where("date <= ?", httpx.EndOfDay(*to))
		}
		if from != nil && to != nil && from.After(*to) {
			return fiber.NewError(fiber.StatusBadRequest, "from cannot be after to")
		}
		if cid, ok, err := httpx.QueryUint(c, "category_id"); err != nil {
			return err
		} else if ok {
			dbq = dbq.Where("category_id = ?", cid)
		}
		if lid, ok, err := httpx.QueryUint(c, "lorry_id"); err != nil {
			return err
		} else if ok {
			dbq = dbq.Where("lorry_id = ?", lid)
		}
		if s := c.Query("status"); s != "" {
			if !models.ExpenseStatus(s).Valid() {
				return fiber.NewError(fiber.StatusBadRequest, "status must be one of: pending paid partially_paid cancelled")
			}
			dbq = dbq.Where("status = ?", s)
		}

		var expenses []models.Expense
		if err := dbq.Order("date DESC, id DESC").Find(&expenses).Error; err != nil {
			return err
		}

		now := time.Now()
		resp := make([]ExpenseResponse, 0, len(expenses))
		for _, e := range expenses {
			resp = append(resp, toResponse(e, now))
		}
		return c.JSON(resp)
	}
}

func loadExpense(c *fiber.Ctx) (uint, models.Expense, error) {
	tenantID, err := auth.ResolveTenantFromQuery(c)
	if err != nil {
		return 0, models.Expense{}, err
	}
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return 0, models.Expense{}, err
	}
	e, err := FindExpense(database.DB.Preload("Category"), tenantID, id)
	if err != nil {
		return 0, e, mapError(err)
	}
	return tenantID, e, nil
}

// GET /api/expenses/:id
func GetExpenseHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		_, e, err := loadExpense(c)
		if err != nil {
			return err
		}

		var payments []models.ExpensePayment
		if err := database.DB.Where("expense_id = ?", e.ID).Order("date ASC, id ASC").Find(&payments).Error; err != nil {
			return err
		}
		pr := make([]PaymentResponse, 0, len(payments))
		for _, p := range payments {
			pr = append(pr, PaymentResponse{
				ID:     p.ID,
				Date:   p.Date.UTC().Format(httpx.DateLayout),
				Amount: p.Amount,
				Note:   p.Note,
			})
		}

		return c.JSON(fiber.Map{
			"expense":  toResponse(e, time.Now()),
			"payments": pr,
		})
	}
}

// PUT /api/expenses/:id
func UpdateExpenseHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := auth.ResolveTenantFromQuery(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		var body UpdateExpenseRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}
		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		var e models.Expense
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			if e, err = FindExpense(database.ForUpdate(tx), tenantID, id); err != nil {
				return err
			}
			if e.Status == models.ExpenseStatusCancelled {
				return ErrExpenseCancelled
			}
			before, err := snapshotOf(tx, e)
			if err != nil {
				return err
			}

			if body.CategoryID != nil {
				if _, err := findCategory(tx, tenantID, *body.CategoryID); err != nil {
					return err
				}
				e.CategoryID = *body.CategoryID
			}
			if body.ClearLorry {
				e.LorryID = nil
			} else if body.LorryID != nil {
				if err := checkLorry(tx, tenantID, body.LorryID); err != nil {
					return err
				}
				e.LorryID = body.LorryID
			}
			if body.Date != nil {
				d, err := httpx.ParseDate(*body.Date, "date")
				if err != nil {
					return err
				}
				e.Date = d
			}
			if body.DueDate != nil {
				d, err := httpx.ParseDate(*body.DueDate, "due_date")
				if err != nil {
					return err
				}
				e.DueDate = &d
			}
			if body.Vendor != nil {
				e.Vendor = strings.TrimSpace(*body.Vendor)
			}
			if body.Description != nil {
				e.Description = strings.TrimSpace(*body.Description)
			}
			if body.Amount != nil {
				amount := roundMoney(*body.Amount)
				if amount+cent < e.PaidAmount {
					return ErrAmountBelowPaid
				}
				e.Amount = amount
			}
			e.Status = DeriveStatus(e.Amount, e.PaidAmount, false)

			if err := tx.Omit("Category").Save(&e).Error; err != nil {
				return err
			}
			after, err := snapshotOf(tx, e)
			if err != nil {
				return err
			}
			return writeLog(tx, actor, e, models.AuditActionUpdate, fmt.Sprintf("Expense updated: %.2f", e.Amount), before, after)
		})
		if err != nil {
			return mapError(err)
		}

		database.DB.Preload("Category").First(&e, e.ID)
		cache.Invalidate(tenantID)
		return c.JSON(toResponse(e, time.Now()))
	}
}

// POST /api/expenses/:id/payments
func AddPaymentHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := auth.ResolveTenantFromQuery(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		var body AddPaymentRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}
		date, err := httpx.ParseDate(body.Date, "date")
		if err != nil {
			return err
		}
		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		var e models.Expense
		var p models.ExpensePayment
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			if e, err = FindExpense(database.ForUpdate(tx), tenantID, id); err != nil {
				return err
			}
			before, err := snapshotOf(tx, e)
			if err != nil {
				return err
			}
			if p, err = AddPayment(tx, &e, PaymentInput{Date: date, Amount: body.Amount, Note: strings.TrimSpace(body.Note)}); err != nil {
				return err
			}
			after, err := snapshotOf(tx, e)
			if err != nil {
				return err
			}
			return writeLog(tx, actor, e, models.AuditActionUpdate,
				fmt.Sprintf("Payment of %.2f recorded", p.Amount), before, after)
		})
		if err != nil {
			return mapError(err)
		}

		database.DB.Preload("Category").First(&e, e.ID)
		cache.Invalidate(tenantID)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"payment": PaymentResponse{ID: p.ID, Date: p.Date.UTC().Format(httpx.DateLayout), Amount: p.Amount, Note: p.Note},
			"expense": toResponse(e, time.Now()),
		})
	}
}

// POST /api/expenses/:id/cancel
func CancelExpenseHandler() fiber.Handler {
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

		var e models.Expense
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			if e, err = FindExpense(database.ForUpdate(tx), tenantID, id); err != nil {
				return err
			}
			if e.Status == models.ExpenseStatusCancelled {
				return ErrExpenseCancelled
			}
			before, err := snapshotOf(tx, e)
			if err != nil {
				return err
			}
			e.Status = models.ExpenseStatusCancelled
			if err := tx.Model(&e).Update("status", e.Status).Error; err != nil {
				return err
			}
			after := before
			after.Expense = e
			return writeLog(tx, actor, e, models.AuditActionUpdate, "Expense cancelled", before, after)
		})
		if err != nil {
			return mapError(err)
		}

		database.DB.Preload("Category").First(&e, e.ID)
		cache.Invalidate(tenantID)
		return c.JSON(toResponse(e, time.Now()))
	}
}

// DELETE /api/expenses/:id
func DeleteExpenseHandler() fiber.Handler {
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
			e, err := FindExpense(tx, tenantID, id)
			if err != nil {
				return err
			}
			before, err := snapshotOf(tx, e)
			if err != nil {
				return err
			}
			if err := tx.Where("expense_id = ?", e.ID).Delete(&models.ExpensePayment{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&e).Error; err != nil {
				return err
			}
			return writeLog(tx, actor, e, models.AuditActionDelete,
				fmt.Sprintf("Expense deleted: %.2f", e.Amount), before, nil)
		})
		if err != nil {
			return mapError(err)
		}

		cache.Invalidate(tenantID)
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// GET /api/expenses/summary?from=&to=
func SummaryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := auth.ResolveTenantFromQuery(c)
		if err != nil {
			return err
		}
		from, to, err := httpx.DateRange(c, time.Now(), 366)
		if err != nil {
			return err
		}

		var expenses []models.Expense
		if err := database.DB.
			Where("tenant_id = ? AND date >= ? AND date <= ?", tenantID, from, httpx.EndOfDay(to)).
			Find(&expenses).Error; err != nil {
			return err
		}
		var categories []models.ExpenseCategory
		if err := database.DB.Where("tenant_id = ?", tenantID).Find(&categories).Error; err != nil {
			return err
		}

		ov := report.BuildOverview(nil, nil, nil, expenses, categories)
		return c.JSON(SummaryResponse{
			From:        from.Format(httpx.DateLayout),
			To:          to.Format(httpx.DateLayout),
			Total:       ov.ExpenseTotal,
			Paid:        ov.ExpensePaid,
			Outstanding: ov.ExpenseOutstanding,
			PaidPct:     report.Percent(ov.ExpensePaid, ov.ExpenseTotal),
			ByCategory:  ov.ByCategory,
			ByStatus:    ov.ByStatus,
		})
	}
}
