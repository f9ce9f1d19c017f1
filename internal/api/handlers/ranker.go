package handlers

import (
	"net/http"

	"energy-mca/internal/api/models"
	"energy-mca/internal/dispatch"

	"github.com/gin-gonic/gin"
)

// ListRankers handles GET /api/v1/rankers
func ListRankers(c *gin.Context) {
	rankers := []models.RankerInfo{
		{
			Name:        dispatch.MeritOrder{}.Name(),
			Description: "Merit order. Cheapest marginal cost dispatches first; ties break on technology name.",
			Parameters:  []models.ParameterInfo{},
		},
		{
			Name:        dispatch.FixedOrder{}.Name(),
			Description: "Fixed priority list. Listed technologies dispatch in the given order, the rest follow in merit order.",
			Parameters: []models.ParameterInfo{
				{
					Name:        "dispatch_order",
					Type:        "[]string",
					Description: "Technology names, highest priority first",
				},
			},
		},
	}

	c.JSON(http.StatusOK, gin.H{"rankers": rankers})
}
