package handlers

import (
	"net/http"

	"energy-mca/internal/api/models"
	"energy-mca/internal/timeslice"

	"github.com/gin-gonic/gin"
)

// FlattenTimeslices handles POST /api/v1/timeslices
//
// It flattens a timeslice tree, optionally dropping levels, so clients can
// see the indices a model will use.
func FlattenTimeslices(c *gin.Context) {
	var req models.TimesliceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}

	set, err := timeslice.Flatten(req.Definition)
	if err == nil && len(req.DropLevels) > 0 {
		set, _, err = timeslice.Collapse(set, req.DropLevels...)
	}
	if err != nil {
		writeModelError(c, err)
		return
	}

	c.JSON(http.StatusOK, TimesliceResponse(set))
}

// TimesliceResponse describes a flattened set.
func TimesliceResponse(set *timeslice.Set) models.TimesliceResponse {
	out := models.TimesliceResponse{
		Levels:     set.Levels(),
		Timeslices: make([]models.TimesliceInfo, set.Len()),
	}
	for i := 0; i < set.Len(); i++ {
		ts := set.At(i)
		out.Timeslices[i] = models.TimesliceInfo{
			Index:  ts.Index,
			Name:   ts.Name(),
			Path:   ts.Path,
			Weight: ts.Weight,
		}
	}
	return out
}
