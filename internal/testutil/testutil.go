// Package testutil wires an in-memory database and authenticated requests for handler tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"depot-backend/internal/auth"
	"depot-backend/internal/config"
	"depot-backend/internal/database"
	"depot-backend/internal/httpx"
	"depot-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config returns a valid configuration for tests.
func Config() *config.Config {
	return &config.Config{
		AppEnv:          "test",
		DatabaseDriver:  "sqlite",
		JWTSecret:       strings.Repeat("t", 32),
		JWTTTL:          time.Hour,
		LoginRateLimit:  1000,
		MQTTTopicPrefix: "scales",
		MQTTQoS:         1,
	}
}

// NewDB opens a private in-memory sqlite database, migrates it and installs it as database.DB.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))

	prev := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = prev
		_ = sqlDB.Close()
	})
	return db
}

// NewApp returns a Fiber app using the production error handler.
func NewApp() *fiber.App {
	return fiber.New(fiber.Config{ErrorHandler: httpx.ErrorHandler})
}

// Fixture is a tenant with one user per role.
type Fixture struct {
	Tenant     models.Tenant
	Admin      models.User
	Staff      models.User
	SuperAdmin models.User
}

var userSeq int

// CreateTenant inserts an active tenant with an admin and a staff user.
func CreateTenant(t testing.TB, db *gorm.DB, name string) Fixture {
	t.Helper()
	slug := strings.ToLower(strings.ReplaceAll(name, " ", "-"))
	tenant := models.Tenant{
		PublicID: uuid.NewString(),
		Name:     name,
		Slug:     slug,
		Status:   models.TenantStatusActive,
	}
	require.NoError(t, db.Create(&tenant).Error)

	return Fixture{
		Tenant:     tenant,
		Admin:      CreateUser(t, db, &tenant.ID, models.RoleTenantAdmin),
		Staff:      CreateUser(t, db, &tenant.ID, models.RoleStaff),
		SuperAdmin: superAdmin(t, db),
	}
}

func superAdmin(t testing.TB, db *gorm.DB) models.User {
	var u models.User
	if err := db.Where("role = ?", models.RoleSuperAdmin).First(&u).Error; err == nil {
		return u
	}
	return CreateUser(t, db, nil, models.RoleSuperAdmin)
}

// CreateUser inserts a user whose password is "password123".
func CreateUser(t testing.TB, db *gorm.DB, tenantID *uint, role models.UserRole) models.User {
	t.Helper()
	userSeq++
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	u := models.User{
		TenantID:     tenantID,
		Name:         fmt.Sprintf("%s %d", role, userSeq),
		Email:        fmt.Sprintf("%s%d@example.com", role, userSeq),
		PasswordHash: string(hash),
		Role:         role,
	}
	require.NoError(t, db.Create(&u).Error)
	return u
}

// Token signs a JWT for u with the test config.
func Token(t testing.TB, u models.User) string {
	t.Helper()
	cfg := Config()
	tok, err := auth.GenerateToken(cfg.JWTSecret, cfg.JWTTTL, &u)
	require.NoError(t, err)
	return tok
}

// Do sends a JSON request as u (nil for anonymous) and returns the response.
func Do(t testing.TB, app *fiber.App, u *models.User, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if u != nil {
		req.Header.Set("Authorization", "Bearer "+Token(t, *u))
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

// Decode reads a JSON response body into out and closes it.
func Decode(t testing.TB, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

// ErrorMessage returns the "error" field of a JSON error response.
func ErrorMessage(t testing.TB, resp *http.Response) string {
	t.Helper()
	var out map[string]any
	Decode(t, resp, &out)
	msg, _ := out["error"].(string)
	return msg
}

// Date parses YYYY-MM-DD.
func Date(s string) time.Time {
	d, err := time.Parse(httpx.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}
