package handlers

import (
	"net/http"
	"strconv"

	"energy-mca/internal/analysis"
	"energy-mca/internal/api/models"
	"energy-mca/internal/results"

	"github.com/gin-gonic/gin"
)

// RankTechnologies handles GET /api/v1/simulations/:id/ranking
//
// Query: year, sector, commodity filter the supply rows; limit caps the
// number of entries (default 10).
func (h *SimulationHandler) RankTechnologies(c *gin.Context) {
	sim, ok := h.lookup(c)
	if !ok {
		return
	}
	f, ok := parseFilter(c)
	if !ok {
		return
	}
	limit := 10
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeError(c, http.StatusBadRequest, "INVALID_QUERY", "limit must be a positive integer", nil)
			return
		}
		limit = n
	}

	ranked := analysis.RankBySupply(sim.Tables.SupplyRows(f))
	if limit > len(ranked) {
		limit = len(ranked)
	}
	c.JSON(http.StatusOK, models.RankResponse{ID: sim.Run.ID.String(), Rankings: ranked[:limit]})
}

// PriceStats handles GET /api/v1/simulations/:id/price-stats
func (h *SimulationHandler) PriceStats(c *gin.Context) {
	sim, ok := h.lookup(c)
	if !ok {
		return
	}
	f, ok := parseFilter(c)
	if !ok {
		return
	}
	rows := sim.Tables.PriceRows(results.Filter{Year: f.Year, Commodity: f.Commodity})
	c.JSON(http.StatusOK, gin.H{
		"id":    sim.Run.ID.String(),
		"stats": analysis.ComputePriceStats(rows, sim.Weights),
	})
}
