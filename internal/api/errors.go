package api

import (
	"errors"
	"net/http"

	"tour-inventory/internal/models"
	"tour-inventory/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor maps an engine error code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case models.CodeInventoryNotFound, models.CodeReservationNotFound:
		return http.StatusNotFound
	case models.CodeInsufficientCapacity, models.CodeReservationConflict,
		models.CodeSeasonalPricingConflict, models.CodeSlotUnavailable:
		return http.StatusConflict
	case models.CodeReservationExpired:
		return http.StatusGone
	case models.CodeDateInPast, models.CodeInvalidCapacity, models.CodeBulkUpdateLimitExceeded:
		return http.StatusUnprocessableEntity
	case models.CodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": CODE, "details": message}.
// Internal errors are logged and their message is not exposed.
func respondError(c *gin.Context, err error) {
	var coded *models.Error
	if !errors.As(err, &coded) {
		util.GetLogger().Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   models.CodeInternal,
			"details": "internal error",
		})
		return
	}

	c.JSON(statusFor(coded.Code), gin.H{
		"error":   coded.Code,
		"details": coded.Message,
	})
}

func badRequest(c *gin.Context, details string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   models.CodeValidation,
		"details": details,
	})
}
