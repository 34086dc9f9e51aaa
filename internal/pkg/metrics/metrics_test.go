package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocationsCounter(t *testing.T) {
	before := testutil.ToFloat64(Allocations.WithLabelValues("success"))
	Allocations.WithLabelValues("success").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(Allocations.WithLabelValues("success")))
}

func TestHandlerExposesLedgerMetrics(t *testing.T) {
	CreditsIssued.WithLabelValues("system").Add(5)

	app := fiber.New()
	app.Get("/metrics", Handler())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "creditledger_credits_issued_total"))
}
