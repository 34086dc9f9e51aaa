package cache

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/CreditLedger/internal/pkg/env"
)

// NewLimiterStorage returns Redis backed storage for the rate limiter so that
// all instances share one budget per client. The database is separate from
// the lock database.
func NewLimiterStorage() fiber.Storage {
	return redis.New(redis.Config{
		Host:     env.GetEnv("CACHE_HOST", "localhost"),
		Port:     env.GetEnvInt("CACHE_PORT", 6379),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		Database: env.GetEnvInt("LIMITER_CACHE_DB", 1),
		Reset:    false,
	})
}
