package adminserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"enrich/internal/logger"
	"enrich/internal/registry"
	"enrich/pkg/health"
)

// Handler exposes read-only visibility into a running engine: health
// of its backing stores, and a summary of the Registry snapshot
// currently serving traffic. It never accepts writes; enrichment
// configuration is administered through internal/management, not
// through this API.
type Handler struct {
	registry *registry.EnrichmentRegistry
	health   *health.CheckerRegistry
	logger   logger.Logger
}

func NewHandler(reg *registry.EnrichmentRegistry, healthRegistry *health.CheckerRegistry, log logger.Logger) *Handler {
	return &Handler{registry: reg, health: healthRegistry, logger: log}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)

	v1 := router.Group("/v1")
	{
		v1.GET("/registry", h.RegistrySummary)
	}
}

// Health godoc
// @Summary      Report backing-store health
// @Description  Pings every configured database/cache and reports overall status
// @Tags         operations
// @Produce      json
// @Success      200  {object}  health.Health
// @Failure      503  {object}  health.Health
// @Router       /health [get]
func (h *Handler) Health(c *gin.Context) {
	result := h.health.Check(c.Request.Context())
	status := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, result)
}

// registrySummaryResponse intentionally omits the live Enrichment
// instances themselves; the summary is for operator visibility, not
// for driving behavior from outside the process.
type registrySummaryResponse struct {
	BuiltAt     string   `json:"built_at"`
	Enrichments []string `json:"enrichments"`
	AssetURIs   []string `json:"asset_uris"`
}

// RegistrySummary godoc
// @Summary      Describe the active registry snapshot
// @Description  Lists the enrichments and asset URIs the currently swapped-in Registry was built from
// @Tags         operations
// @Produce      json
// @Success      200  {object}  registrySummaryResponse
// @Failure      503  {object}  gin.H
// @Router       /v1/registry [get]
func (h *Handler) RegistrySummary(c *gin.Context) {
	snap := h.registry.Snapshot()
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "registry not yet built"})
		return
	}

	names := make([]string, 0, len(snap.Configs))
	for _, entry := range snap.Configs {
		names = append(names, entry.Name)
	}

	c.JSON(http.StatusOK, registrySummaryResponse{
		BuiltAt:     snap.BuiltAt.Format("2006-01-02T15:04:05Z07:00"),
		Enrichments: names,
		AssetURIs:   registry.AssetURIs(snap.Configs),
	})
}
