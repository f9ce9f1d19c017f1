package handlers

import (
	"errors"
	"net/http"
	"os"

	"energy-mca/internal/api/models"
	"energy-mca/internal/model"

	"github.com/gin-gonic/gin"
)

func writeError(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	c.JSON(status, models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// writeModelError maps model loading and run errors onto HTTP responses.
func writeModelError(c *gin.Context, err error) {
	var cyc *model.CyclicDependencyError
	var cfg *model.ConfigurationError
	switch {
	case errors.As(err, &cyc):
		writeError(c, http.StatusUnprocessableEntity, "CYCLIC_DEPENDENCY", err.Error(), map[string]interface{}{"cycles": cyc.Cycles})
	case errors.As(err, &cfg):
		var details map[string]interface{}
		if cfg.Field != "" {
			details = map[string]interface{}{"field": cfg.Field}
		}
		writeError(c, http.StatusBadRequest, "INVALID_MODEL", cfg.Reason, details)
	case errors.Is(err, os.ErrNotExist):
		writeError(c, http.StatusNotFound, "MODEL_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, errInvalidModelName):
		writeError(c, http.StatusBadRequest, "INVALID_MODEL", err.Error(), nil)
	default:
		writeError(c, http.StatusInternalServerError, "SIMULATION_ERROR", err.Error(), nil)
	}
}
