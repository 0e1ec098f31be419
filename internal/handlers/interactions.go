package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dealopia/deals-service/internal/engine"
)

// InteractionRequest represents the body of an interaction recording call
type InteractionRequest struct {
	Kind string `json:"kind" binding:"required"`
}

// RecordInteraction bumps a deal's view or click counter
// POST /api/deals/:dealId/interactions {"kind": "view"}
func RecordInteraction(c *gin.Context) {
	dealID, err := strconv.ParseInt(c.Param("dealId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dealId must be an integer"})
		return
	}

	var req InteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err = eng.RecordInteraction(c.Request.Context(), dealID, engine.InteractionKind(req.Kind))
	if err != nil {
		var invalid engine.ErrInvalidParameter
		switch {
		case errors.As(err, &invalid):
			c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Error()})
		case errors.Is(err, engine.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Deal not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record interaction"})
		}
		return
	}

	c.Status(http.StatusNoContent)
}
