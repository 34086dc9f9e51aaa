package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTypedGetters(t *testing.T) {
	Env = map[string]string{
		"INT_OK":   "42",
		"INT_BAD":  "x",
		"BOOL_OK":  "true",
		"DUR_OK":   "15m",
		"DUR_NEG":  "-1s",
		"LIST":     " a, ,b ,c",
		"OVERRIDE": "from-file",
	}
	t.Cleanup(func() { Env = nil })

	assert.Equal(t, 42, GetEnvInt("INT_OK", 1))
	assert.Equal(t, 1, GetEnvInt("INT_BAD", 1))
	assert.Equal(t, 7, GetEnvInt("MISSING", 7))
	assert.True(t, GetEnvBool("BOOL_OK", false))
	assert.False(t, GetEnvBool("MISSING", false))
	assert.Equal(t, 15*time.Minute, GetEnvDuration("DUR_OK", time.Hour))
	assert.Equal(t, time.Hour, GetEnvDuration("DUR_NEG", time.Hour))
	assert.Equal(t, []string{"a", "b", "c"}, GetEnvList("LIST"))
	assert.Nil(t, GetEnvList("MISSING"))
}

func TestGetEnvFallsBackToOS(t *testing.T) {
	Env = map[string]string{}
	t.Cleanup(func() { Env = nil })
	t.Setenv("CREDITLEDGER_TEST_KEY", "os-value")

	assert.Equal(t, "os-value", GetEnv("CREDITLEDGER_TEST_KEY", "def"))
	assert.Equal(t, "def", GetEnv("CREDITLEDGER_UNSET_KEY", "def"))
}
