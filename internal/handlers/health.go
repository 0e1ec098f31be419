package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dealopia/deals-service/internal/database"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Cache    string `json:"cache"`
}

// cachePing is set at startup when a Redis cache backend is configured.
// The cache is optional, so a failing ping degrades the report but not the
// status code.
var cachePing func(context.Context) error

// RegisterCachePing wires the cache health probe.
func RegisterCachePing(ping func(context.Context) error) {
	cachePing = ping
}

// HealthCheck handles the health check endpoint
func HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status: "ok",
		Cache:  "not configured",
	}

	if cachePing != nil {
		if err := cachePing(c.Request.Context()); err != nil {
			response.Cache = "disconnected"
		} else {
			response.Cache = "connected"
		}
	}

	// Check database connection
	if database.Pool() != nil {
		err := database.Status(c.Request.Context())
		if err != nil {
			response.Database = "disconnected"
			c.JSON(http.StatusServiceUnavailable, response)
			return
		}
		response.Database = "connected"
	} else {
		response.Database = "not configured"
	}

	c.JSON(http.StatusOK, response)
}
