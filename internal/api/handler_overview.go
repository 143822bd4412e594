package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fleet-audit-backend/internal/fleet"
	"fleet-audit-backend/internal/store"
)

// overviewResponse is a roll-up of one hierarchy level.
type overviewResponse struct {
	Totals fleet.Group   `json:"totals"`
	Groups []fleet.Group `json:"groups"`
}

// GetOverview handles GET /api/overview: fleet health rolled up by region.
func (h *Handler) GetOverview(c *gin.Context) {
	h.rollup(c, store.DeviceFilter{}, fleet.LevelRegion)
}

// GetSubregions handles GET /api/regions/{region}/subregions.
func (h *Handler) GetSubregions(c *gin.Context) {
	h.rollup(c, store.DeviceFilter{Regions: []string{c.Param("region")}}, fleet.LevelSubregion)
}

// GetRegionFacilities handles GET /api/regions/{region}/facilities.
func (h *Handler) GetRegionFacilities(c *gin.Context) {
	h.rollup(c, store.DeviceFilter{Regions: []string{c.Param("region")}}, fleet.LevelFacility)
}

func (h *Handler) rollup(c *gin.Context, filter store.DeviceFilter, level fleet.Level) {
	at, ok := referenceTime(c)
	if !ok {
		return
	}

	devices, err := h.store.Devices(c.Request.Context(), filter)
	if err != nil {
		h.log.Error("failed to list devices", zap.String("level", string(level)), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve devices"})
		return
	}
	devices = fleet.ApplyOverrides(devices, fleet.NewOverrideSet(overrideIDs(c)...))

	groups := fleet.Aggregate(devices, level, h.live, at)
	c.JSON(http.StatusOK, overviewResponse{
		Totals: fleet.Totals(groups),
		Groups: fleet.SortedGroups(groups),
	})
}
