package auth_test

import (
	"testing"
	"time"

	"depot-backend/internal/auth"
	"depot-backend/internal/models"
	"depot-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp() *fiber.App {
	cfg := testutil.Config()
	app := testutil.NewApp()
	api := app.Group("/api")
	api.Post("/auth/register-super-admin", auth.RegisterSuperAdminHandler())
	api.Post("/auth/login", auth.LoginHandler(cfg))

	protected := api.Group("", auth.JWTMiddleware(cfg), auth.RequireActiveTenant())
	protected.Get("/auth/me", auth.MeHandler())
	protected.Put("/auth/password", auth.ChangePasswordHandler())
	protected.Get("/admin-only", auth.RequireAdmin(), func(c *fiber.Ctx) error { return c.SendString("ok") })
	protected.Get("/scoped", func(c *fiber.Ctx) error {
		tid, err := auth.ResolveTenantFromQuery(c)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"tenant_id": tid})
	})
	return app
}

func TestRegisterSuperAdminOnlyOnce(t *testing.T) {
	testutil.NewDB(t)
	app := newApp()

	body := map[string]string{"name": "Root", "email": " Root@Example.com ", "password": "supersecret"}
	resp := testutil.Do(t, app, nil, "POST", "/api/auth/register-super-admin", body)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var created auth.UserResponse
	testutil.Decode(t, resp, &created)
	assert.Equal(t, "root@example.com", created.Email)
	assert.Equal(t, models.RoleSuperAdmin, created.Role)

	body["email"] = "other@example.com"
	resp = testutil.Do(t, app, nil, "POST", "/api/auth/register-super-admin", body)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestRegisterSuperAdminValidation(t *testing.T) {
	testutil.NewDB(t)
	app := newApp()

	resp := testutil.Do(t, app, nil, "POST", "/api/auth/register-super-admin",
		map[string]string{"name": "Root", "email": "root@example.com", "password": "short"})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, testutil.ErrorMessage(t, resp), "password")
}

func TestLoginAndMe(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.CreateTenant(t, db, "Blue Springs")
	app := newApp()

	resp := testutil.Do(t, app, nil, "POST", "/api/auth/login",
		map[string]string{"email": fx.Admin.Email, "password": "wrong-password"})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp = testutil.Do(t, app, nil, "POST", "/api/auth/login",
		map[string]string{"email": fx.Admin.Email, "password": "password123"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var login struct {
		Token  string            `json:"token"`
		User   auth.UserResponse `json:"user"`
		Tenant struct {
			Slug string `json:"slug"`
		} `json:"tenant"`
	}
	testutil.Decode(t, resp, &login)
	assert.NotEmpty(t, login.Token)
	assert.Equal(t, "blue-springs", login.Tenant.Slug)

	claims, err := auth.ParseToken(testutil.Config().JWTSecret, login.Token)
	require.NoError(t, err)
	assert.Equal(t, fx.Admin.ID, claims.UserID)
	require.NotNil(t, claims.TenantID)
	assert.Equal(t, fx.Tenant.ID, *claims.TenantID)

	resp = testutil.Do(t, app, &fx.Staff, "GET", "/api/auth/me", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestSuspendedTenantIsLockedOut(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.CreateTenant(t, db, "Dry Wells")
	require.NoError(t, db.Model(&fx.Tenant).Update("status", models.TenantStatusSuspended).Error)
	app := newApp()

	resp := testutil.Do(t, app, nil, "POST", "/api/auth/login",
		map[string]string{"email": fx.Staff.Email, "password": "password123"})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	// a token issued before suspension stops working too
	resp = testutil.Do(t, app, &fx.Staff, "GET", "/api/auth/me", nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestJWTMiddlewareRejectsBadTokens(t *testing.T) {
	testutil.NewDB(t)
	app := newApp()

	resp := testutil.Do(t, app, nil, "GET", "/api/auth/me", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	u := models.User{ID: 1, Role: models.RoleStaff}
	expired, err := auth.GenerateToken(testutil.Config().JWTSecret, -time.Minute, &u)
	require.NoError(t, err)
	_, err = auth.ParseToken(testutil.Config().JWTSecret, expired)
	require.Error(t, err)

	forged, err := auth.GenerateToken("another-secret-another-secret-xx", time.Hour, &u)
	require.NoError(t, err)
	_, err = auth.ParseToken(testutil.Config().JWTSecret, forged)
	require.Error(t, err)
}

func TestRoleAndTenantScoping(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.CreateTenant(t, db, "Aqua")
	app := newApp()

	resp := testutil.Do(t, app, &fx.Staff, "GET", "/api/admin-only", nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	resp = testutil.Do(t, app, &fx.Admin, "GET", "/api/admin-only", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	// tenant users cannot escape their tenant through the query string
	var out map[string]uint
	resp = testutil.Do(t, app, &fx.Staff, "GET", "/api/scoped?tenant_id=999", nil)
	testutil.Decode(t, resp, &out)
	assert.Equal(t, fx.Tenant.ID, out["tenant_id"])

	resp = testutil.Do(t, app, &fx.SuperAdmin, "GET", "/api/scoped", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = testutil.Do(t, app, &fx.SuperAdmin, "GET", "/api/scoped?tenant_id=7", nil)
	testutil.Decode(t, resp, &out)
	assert.Equal(t, uint(7), out["tenant_id"])
}

func TestChangePassword(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.CreateTenant(t, db, "Aqua")
	app := newApp()

	resp := testutil.Do(t, app, &fx.Staff, "PUT", "/api/auth/password",
		map[string]string{"old_password": "nope", "new_password": "newpassword1"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = testutil.Do(t, app, &fx.Staff, "PUT", "/api/auth/password",
		map[string]string{"old_password": "password123", "new_password": "newpassword1"})
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp = testutil.Do(t, app, nil, "POST", "/api/auth/login",
		map[string]string{"email": fx.Staff.Email, "password": "newpassword1"})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestActorIsAdmin(t *testing.T) {
	assert.True(t, auth.Actor{Role: models.RoleSuperAdmin}.IsAdmin())
	assert.True(t, auth.Actor{Role: models.RoleTenantAdmin}.IsAdmin())
	assert.False(t, auth.Actor{Role: models.RoleStaff}.IsAdmin())
}
