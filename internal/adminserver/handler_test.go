package adminserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrich/internal/config"
	"enrich/internal/logger"
	"enrich/internal/registry"
	"enrich/pkg/health"
)

func testRouter(t *testing.T, reg *registry.EnrichmentRegistry) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, err := logger.New("error")
	require.NoError(t, err)

	router := gin.New()
	NewHandler(reg, health.NewCheckerRegistry(), log).RegisterRoutes(router)
	return router
}

func TestRegistrySummaryReturnsServiceUnavailableWhenUnbuilt(t *testing.T) {
	reg := registry.NewEnrichmentRegistry()
	router := testRouter(t, reg)

	req := httptest.NewRequest(http.MethodGet, "/v1/registry", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRegistrySummaryReturnsBuiltRegistry(t *testing.T) {
	reg := registry.NewEnrichmentRegistry()
	builtAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	reg.Swap(&registry.Registry{
		Configs: []config.EnrichmentConfEntry{
			{Name: "geo", Type: "geoip"},
			{Name: "ua", Type: "useragent"},
		},
		BuiltAt: builtAt,
	})
	router := testRouter(t, reg)

	req := httptest.NewRequest(http.MethodGet, "/v1/registry", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body registrySummaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.ElementsMatch(t, []string{"geo", "ua"}, body.Enrichments)
	assert.Equal(t, builtAt.Format("2006-01-02T15:04:05Z07:00"), body.BuiltAt)
}

func TestHealthReportsHealthyWithNoCheckers(t *testing.T) {
	router := testRouter(t, registry.NewEnrichmentRegistry())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body health.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, health.StatusHealthy, body.Status)
}
