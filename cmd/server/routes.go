package main

import (
	"strings"
	"time"

	"depot-backend/internal/audit"
	"depot-backend/internal/auth"
	"depot-backend/internal/config"
	"depot-backend/internal/dashboard"
	"depot-backend/internal/database"
	"depot-backend/internal/expense"
	"depot-backend/internal/httpx"
	"depot-backend/internal/inventory"
	"depot-backend/internal/lorry"
	"depot-backend/internal/metrics"
	"depot-backend/internal/models"
	"depot-backend/internal/report"
	"depot-backend/internal/telemetry"
	"depot-backend/internal/tenant"
	"depot-backend/internal/transaction"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

// newApp builds the Fiber app with every route. bridge may be nil when MQTT is disabled.
func newApp(cfg *config.Config, m *metrics.Metrics, bridge *telemetry.Bridge) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: httpx.ErrorHandler,
		BodyLimit:    10 * 1024 * 1024, // xlsx imports
	})

	app.Use(recover.New())
	app.Use(httpx.SecureHeaders(cfg.IsProduction()))
	app.Use(m.Middleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.CORSOriginList(), ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	app.Get("/metrics", m.Handler())

	api := app.Group("/api")

	api.Get("/health", func(c *fiber.Ctx) error {
		if err := database.Ping(); err != nil {
			zap.L().Warn("health check failed", zap.Error(err))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Public auth
	api.Post("/auth/register-super-admin", auth.RegisterSuperAdminHandler())
	api.Post("/auth/login", httpx.RateLimitByIP(cfg.LoginRateLimit, time.Minute), auth.LoginHandler(cfg))

	protected := api.Group("", auth.JWTMiddleware(cfg), auth.RequireActiveTenant())

	protected.Get("/auth/me", auth.MeHandler())
	protected.Put("/auth/password", auth.ChangePasswordHandler())

	// Platform
	tenants := protected.Group("/tenants", auth.RequireRole(models.RoleSuperAdmin))
	tenants.Post("/", tenant.CreateTenantHandler())
	tenants.Get("/", tenant.ListTenantsHandler())
	tenants.Get("/:id", tenant.GetTenantHandler())
	tenants.Put("/:id", tenant.UpdateTenantHandler())
	tenants.Post("/:id/suspend", tenant.SuspendTenantHandler())
	tenants.Post("/:id/activate", tenant.ActivateTenantHandler())
	tenants.Delete("/:id", tenant.DeleteTenantHandler())

	users := protected.Group("/users", auth.RequireAdmin())
	users.Get("/", tenant.ListUsersHandler())
	users.Post("/", tenant.CreateUserHandler())
	users.Delete("/:id", tenant.DeleteUserHandler())

	// Inventory
	items := protected.Group("/items")
	items.Get("/", inventory.ListItemsHandler())
	items.Get("/low-stock", inventory.LowStockHandler())
	items.Get("/export", inventory.ExportItemsHandler())
	items.Get("/:id", inventory.GetItemHandler())
	items.Post("/", auth.RequireAdmin(), inventory.CreateItemHandler())
	items.Post("/import", auth.RequireAdmin(), inventory.ImportItemsHandler())
	items.Put("/:id", auth.RequireAdmin(), inventory.UpdateItemHandler())
	items.Post("/:id/adjust", auth.RequireAdmin(), inventory.AdjustStockHandler())
	items.Delete("/:id", auth.RequireAdmin(), inventory.DeleteItemHandler())

	lorries := protected.Group("/lorries")
	lorries.Get("/", lorry.ListLorriesHandler())
	lorries.Get("/:id", lorry.GetLorryHandler())
	lorries.Get("/:id/stock", lorry.LorryStockHandler())
	lorries.Post("/", auth.RequireAdmin(), lorry.CreateLorryHandler())
	lorries.Put("/:id", auth.RequireAdmin(), lorry.UpdateLorryHandler())
	lorries.Delete("/:id", auth.RequireAdmin(), lorry.DeleteLorryHandler())

	// Expenses
	cats := protected.Group("/expense-categories")
	cats.Get("/", expense.ListCategoriesHandler())
	cats.Post("/", auth.RequireAdmin(), expense.CreateCategoryHandler())
	cats.Put("/:id", auth.RequireAdmin(), expense.UpdateCategoryHandler())
	cats.Delete("/:id", auth.RequireAdmin(), expense.DeleteCategoryHandler())

	expenses := protected.Group("/expenses")
	expenses.Get("/", expense.ListExpensesHandler())
	expenses.Get("/summary", expense.SummaryHandler())
	expenses.Get("/:id", expense.GetExpenseHandler())
	expenses.Post("/", expense.CreateExpenseHandler())
	expenses.Put("/:id", expense.UpdateExpenseHandler())
	expenses.Post("/:id/payments", expense.AddPaymentHandler())
	expenses.Post("/:id/cancel", expense.CancelExpenseHandler())
	expenses.Delete("/:id", auth.RequireAdmin(), expense.DeleteExpenseHandler())

	// Stock movements
	txs := protected.Group("/transactions")
	txs.Get("/", transaction.ListTransactionsHandler())
	txs.Get("/:id", transaction.GetTransactionHandler())
	txs.Post("/", transaction.CreateTransactionHandler())
	txs.Delete("/:id", auth.RequireAdmin(), transaction.DeleteTransactionHandler())

	returns := protected.Group("/returns")
	returns.Get("/", transaction.ListReturnsHandler())
	returns.Post("/", transaction.CreateReturnHandler())
	returns.Delete("/:id", auth.RequireAdmin(), transaction.DeleteReturnHandler())

	// Reporting
	reports := protected.Group("/reports")
	reports.Get("/overview", report.OverviewHandler())
	reports.Get("/lorry-performance", report.LorryPerformanceHandler())
	reports.Get("/lorry-performance/export", report.ExportLorryPerformanceHandler())
	reports.Get("/daily-sales", report.DailySalesHandler())

	protected.Get("/dashboard/sales-chart", dashboard.SalesChartHandler())

	// Scales
	scales := protected.Group("/scales")
	scales.Get("/", telemetry.ListScalesHandler())
	scales.Get("/:id", telemetry.GetScaleHandler())
	scales.Get("/:id/readings", telemetry.ReadingsHandler())
	scales.Get("/:id/latest", telemetry.LatestReadingHandler())
	scales.Post("/", auth.RequireAdmin(), telemetry.CreateScaleHandler())
	scales.Put("/:id", auth.RequireAdmin(), telemetry.UpdateScaleHandler())
	scales.Delete("/:id", auth.RequireAdmin(), telemetry.DeleteScaleHandler())
	scales.Post("/:id/tare", auth.RequireAdmin(), telemetry.TareScaleHandler(bridge))

	// Audit logs
	protected.Get("/audit-logs", audit.ListAuditLogsHandler())
	protected.Post("/audit-logs/:id/undo", auth.RequireAdmin(), audit.UndoAuditLogHandler())

	return app
}
