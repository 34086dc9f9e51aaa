package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CreditLedger/app/models"
	"github.com/ManuelReschke/CreditLedger/app/repository"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/database/dbtest"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/usercontext"
)

const testSecret = "jwt-test-secret"

func newTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)
	auth := NewAuthenticator(testSecret, repository.NewRepositories(db))

	app := fiber.New()
	echo := func(c *fiber.Ctx) error {
		uc := usercontext.GetUserContext(c)
		return c.JSON(fiber.Map{"user_id": uc.UserID, "client_id": uc.ClientID, "method": uc.AuthMethod})
	}
	app.Get("/me", auth.RequireUser(), echo)
	app.Get("/admin", auth.RequireAdminAPI(), echo)
	return app, db
}

func createUser(t *testing.T, db *gorm.DB, email, role, status string) models.User {
	t.Helper()
	u := models.User{Name: "Auth User", Email: email, Role: role, Status: status}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func get(t *testing.T, app *fiber.App, path string, headers map[string]string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func bearer(t *testing.T, userID uint, role string) map[string]string {
	t.Helper()
	token, err := IssueToken(testSecret, userID, role, time.Hour)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestIssueTokenRoundTrip(t *testing.T) {
	token, err := IssueToken(testSecret, 42, models.ROLE_ADMIN, time.Minute)
	require.NoError(t, err)

	id, claims, err := parseToken([]byte(testSecret), token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)
	assert.Equal(t, models.ROLE_ADMIN, claims.Role)

	_, _, err = parseToken([]byte("other"), token)
	assert.Error(t, err)

	_, err = IssueToken("  ", 1, models.ROLE_USER, time.Minute)
	assert.Error(t, err)
}

func TestParseTokenRejectsExpiredAndUnsigned(t *testing.T) {
	expired, err := IssueToken(testSecret, 1, models.ROLE_USER, -time.Minute)
	require.NoError(t, err)
	_, _, err = parseToken([]byte(testSecret), expired)
	assert.Error(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, _, err = parseToken([]byte(testSecret), none)
	assert.Error(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "1"}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, _, err = parseToken([]byte(testSecret), noExpiry)
	assert.Error(t, err)
}

func TestRequireUser(t *testing.T) {
	app, db := newTestApp(t)
	active := createUser(t, db, "active@example.com", models.ROLE_USER, models.STATUS_ACTIVE)
	disabled := createUser(t, db, "disabled@example.com", models.ROLE_USER, models.STATUS_DISABLED)

	assert.Equal(t, fiber.StatusOK, get(t, app, "/me", bearer(t, active.ID, models.ROLE_USER)))
	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/me", nil))
	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/me", map[string]string{"Authorization": "Bearer garbage"}))
	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/me", bearer(t, 9999, models.ROLE_USER)))
	assert.Equal(t, fiber.StatusForbidden, get(t, app, "/me", bearer(t, disabled.ID, models.ROLE_USER)))
}

func TestRequireAdminAPI(t *testing.T) {
	app, db := newTestApp(t)
	admin := createUser(t, db, "admin@example.com", models.ROLE_ADMIN, models.STATUS_ACTIVE)
	user := createUser(t, db, "user@example.com", models.ROLE_USER, models.STATUS_ACTIVE)

	client := models.APIClient{Name: "cron", Role: models.ROLE_ADMIN}
	rawKey, err := client.IssueKey()
	require.NoError(t, err)
	require.NoError(t, db.Create(&client).Error)

	revoked := models.APIClient{Name: "old", Role: models.ROLE_ADMIN}
	revokedKey, err := revoked.IssueKey()
	require.NoError(t, err)
	revoked.Revoke()
	require.NoError(t, db.Create(&revoked).Error)

	assert.Equal(t, fiber.StatusOK, get(t, app, "/admin", map[string]string{"X-API-Key": rawKey}))
	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/admin", map[string]string{"X-API-Key": revokedKey}))
	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/admin", map[string]string{"X-API-Key": "cl_unknown"}))
	assert.Equal(t, fiber.StatusOK, get(t, app, "/admin", bearer(t, admin.ID, models.ROLE_ADMIN)))
	// A forged role claim does not outrank the stored role.
	assert.Equal(t, fiber.StatusForbidden, get(t, app, "/admin", bearer(t, user.ID, models.ROLE_ADMIN)))
	assert.Equal(t, fiber.StatusForbidden, get(t, app, "/admin", bearer(t, admin.ID, models.ROLE_USER)))
	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/admin", nil))

	var stored models.APIClient
	require.NoError(t, db.First(&stored, client.ID).Error)
	assert.NotNil(t, stored.LastUsedAt)
}
