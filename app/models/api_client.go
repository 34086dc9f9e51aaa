package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const apiKeyPrefix = "cl_"

var apiKeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// APIClient is a machine credential used by admin tooling and cron callers.
// Only the SHA-256 hash of the key is stored.
type APIClient struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Name       string     `gorm:"type:varchar(100);not null" json:"name"`
	Role       string     `gorm:"type:varchar(50);not null;default:'admin'" json:"role"`
	KeyHash    string     `gorm:"type:char(64);not null;uniqueIndex" json:"-"`
	KeyPrefix  string     `gorm:"type:varchar(20);default:''" json:"key_prefix"`
	LastUsedAt *time.Time `json:"last_used_at"`
	RevokedAt  *time.Time `json:"revoked_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// IsActive reports whether the key may still authenticate.
func (c *APIClient) IsActive() bool {
	return c != nil && c.KeyHash != "" && c.RevokedAt == nil
}

// IssueKey generates a new key, stores its hash and prefix on the struct and
// returns the raw secret. The caller persists the struct.
func (c *APIClient) IssueKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	rawKey := apiKeyPrefix + strings.ToLower(apiKeyEncoding.EncodeToString(b))
	if len(rawKey) < 12 {
		return "", fmt.Errorf("api key generation failed: key too short")
	}
	c.KeyHash = HashAPIKey(rawKey)
	c.KeyPrefix = rawKey[:16]
	c.RevokedAt = nil
	c.LastUsedAt = nil
	return rawKey, nil
}

// Revoke disables the key without deleting the record.
func (c *APIClient) Revoke() {
	now := time.Now()
	c.RevokedAt = &now
}

// HashAPIKey returns the SHA-256 hash for the provided API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}
