package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIClientIssueKey(t *testing.T) {
	c := &APIClient{Name: "cron"}

	key, err := c.IssueKey()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(key, "cl_"))

	assert.Equal(t, HashAPIKey(key), c.KeyHash)
	assert.Equal(t, key[:16], c.KeyPrefix)
	assert.True(t, c.IsActive())
}

func TestAPIClientRevoke(t *testing.T) {
	c := &APIClient{Name: "cron"}
	_, err := c.IssueKey()
	require.NoError(t, err)

	c.Revoke()
	assert.False(t, c.IsActive())
	assert.NotNil(t, c.RevokedAt)
}

func TestHashAPIKeyTrimsWhitespace(t *testing.T) {
	assert.Equal(t, HashAPIKey("abc"), HashAPIKey("  abc \n"))
}
