package middleware

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CreditLedger/app/models"
	"github.com/ManuelReschke/CreditLedger/app/repository"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/usercontext"
)

// Authenticator checks bearer tokens and API keys.
type Authenticator struct {
	secret  []byte
	users   repository.UserRepository
	clients repository.APIClientRepository
	now     func() time.Time
}

func NewAuthenticator(jwtSecret string, repos *repository.Repositories) *Authenticator {
	return &Authenticator{
		secret:  []byte(jwtSecret),
		users:   repos.User,
		clients: repos.APIClient,
		now:     time.Now,
	}
}

func unauthorized(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": message,
		"payload": nil,
		"meta":    nil,
	})
}

// RequireUser admits requests carrying a valid user access token.
func (a *Authenticator) RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractBearerToken(c)
		if token == "" {
			return unauthorized(c, fiber.StatusUnauthorized, "Missing bearer token")
		}
		ctx, status, msg := a.authenticateJWT(token)
		if status != 0 {
			return unauthorized(c, status, msg)
		}
		usercontext.Set(c, ctx)
		return c.Next()
	}
}

// RequireAdminAPI admits admin users (bearer token) and admin API clients
// (X-API-Key).
func (a *Authenticator) RequireAdminAPI() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var (
			ctx    usercontext.UserContext
			status int
			msg    string
		)
		if apiKey := extractAPIKeyFromHeader(c); apiKey != "" {
			ctx, status, msg = a.authenticateAPIKey(apiKey)
		} else if token := extractBearerToken(c); token != "" {
			ctx, status, msg = a.authenticateJWT(token)
		} else {
			return unauthorized(c, fiber.StatusUnauthorized, "Missing credentials")
		}
		if status != 0 {
			return unauthorized(c, status, msg)
		}
		if !ctx.IsAdmin {
			return unauthorized(c, fiber.StatusForbidden, "Admin role required")
		}
		usercontext.Set(c, ctx)
		return c.Next()
	}
}

func (a *Authenticator) authenticateJWT(token string) (usercontext.UserContext, int, string) {
	if len(a.secret) == 0 {
		log.Error("[Auth] JWT_SECRET is not configured")
		return usercontext.UserContext{}, fiber.StatusInternalServerError, "Authentication is not configured"
	}
	userID, claims, err := parseToken(a.secret, token)
	if err != nil {
		return usercontext.UserContext{}, fiber.StatusUnauthorized, "Invalid or expired token"
	}

	user, err := a.users.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return usercontext.UserContext{}, fiber.StatusUnauthorized, "Unknown user"
		}
		log.Errorf("[Auth] User lookup failed: %v", err)
		return usercontext.UserContext{}, fiber.StatusInternalServerError, "Token verification failed"
	}
	if user.Status != models.STATUS_ACTIVE {
		return usercontext.UserContext{}, fiber.StatusForbidden, "User inactive"
	}

	// Both the token and the stored user must carry the role.
	return usercontext.UserContext{
		UserID:     user.ID,
		IsLoggedIn: true,
		IsAdmin:    claims.Role == models.ROLE_ADMIN && user.Role == models.ROLE_ADMIN,
		AuthMethod: usercontext.AuthJWT,
	}, 0, ""
}
