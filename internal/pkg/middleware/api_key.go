package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CreditLedger/app/models"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/usercontext"
)

// authenticateAPIKey resolves an X-API-Key header to a machine client.
func (a *Authenticator) authenticateAPIKey(apiKey string) (usercontext.UserContext, int, string) {
	client, err := a.clients.GetByKeyHash(models.HashAPIKey(apiKey))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return usercontext.UserContext{}, fiber.StatusUnauthorized, "Invalid API key"
		}
		log.Errorf("[Auth] API key lookup failed: %v", err)
		return usercontext.UserContext{}, fiber.StatusInternalServerError, "API key verification failed"
	}
	if !client.IsActive() {
		return usercontext.UserContext{}, fiber.StatusUnauthorized, "API key revoked"
	}

	// Refresh last-used timestamp best-effort.
	if err := a.clients.TouchLastUsed(client.ID, a.now().UTC()); err != nil {
		log.Warnf("[Auth] Failed to update last use of API client %d: %v", client.ID, err)
	}

	return usercontext.UserContext{
		ClientID:   client.ID,
		IsLoggedIn: true,
		IsAdmin:    client.Role == models.ROLE_ADMIN,
		AuthMethod: usercontext.AuthAPIKey,
	}, 0, ""
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Get("X-API-Key"))
}

func extractBearerToken(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get("Authorization"))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
