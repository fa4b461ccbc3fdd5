package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetStats returns the health reporter snapshot
// @Summary Delivery subsystem statistics
// @Description Read-only aggregation: envelope counts by status, unresolved dead letters and oldest pending age
// @Tags stats
// @Produce json
// @Success 200 {object} health.Report
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/stats [get]
func (h *Handlers) GetStats(c *gin.Context) {
	report, err := h.reporter.Report(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to build stats report")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build stats report"})
		return
	}
	c.JSON(http.StatusOK, report)
}
