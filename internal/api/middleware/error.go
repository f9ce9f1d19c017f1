package middleware

import (
	"fmt"
	"net/http"

	"energy-mca/internal/api/models"
	"energy-mca/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ErrorHandler middleware turns panics into an INTERNAL_ERROR response
func ErrorHandler(log logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		message := "An unexpected error occurred"
		if s, ok := recovered.(string); ok {
			message = s
		}
		log.Error(c.Request.Context(), "panic recovered",
			logger.String("path", c.Request.URL.Path),
			logger.String("panic", fmt.Sprint(recovered)))
		c.AbortWithStatusJSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    "INTERNAL_ERROR",
				Message: message,
			},
		})
	})
}
