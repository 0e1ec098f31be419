package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dealopia/deals-service/internal/engine"
	"github.com/dealopia/deals-service/internal/taskqueue"
	"github.com/dealopia/deals-service/internal/workers"
)

// RecomputeScoreResponse represents the result of a synchronous recompute
type RecomputeScoreResponse struct {
	DealID int64   `json:"dealId"`
	Score  float64 `json:"score"`
}

// RecomputeDealScore synchronously recomputes one deal's sustainability score
// POST /internal/admin/deals/:dealId/recompute-score
func RecomputeDealScore(c *gin.Context) {
	dealID, err := strconv.ParseInt(c.Param("dealId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dealId must be an integer"})
		return
	}

	score, err := eng.RecomputeSustainabilityScore(c.Request.Context(), dealID)
	if errors.Is(err, engine.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Deal not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to recompute score"})
		return
	}

	c.JSON(http.StatusOK, RecomputeScoreResponse{DealID: dealID, Score: score})
}

// ScheduleWarmupRequest represents the body of a cache warmup scheduling call
type ScheduleWarmupRequest struct {
	Kind       string  `json:"kind" binding:"required"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	RadiusKm   float64 `json:"radiusKm"`
	CategoryID int64   `json:"categoryId"`
	MinScore   float64 `json:"minScore"`
	Limit      int     `json:"limit"`
}

// ScheduleCacheWarmup enqueues a cache warmup task
// POST /internal/admin/cache/warmup
func ScheduleCacheWarmup(c *gin.Context) {
	if queue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Task queue not configured"})
		return
	}

	var req ScheduleWarmupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := queue.ScheduleTask(c.Request.Context(), taskqueue.ScheduleTaskInput{
		TaskType: taskqueue.TaskTypeCacheWarmup,
		Payload: workers.CacheWarmupPayload{
			Kind:       req.Kind,
			Latitude:   req.Latitude,
			Longitude:  req.Longitude,
			RadiusKm:   req.RadiusKm,
			CategoryID: req.CategoryID,
			MinScore:   req.MinScore,
			Limit:      req.Limit,
		},
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to schedule warmup"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"taskId": id})
}

// GetTask returns the state of one background task
// GET /internal/admin/tasks/:taskId
func GetTask(c *gin.Context) {
	if queue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Task queue not configured"})
		return
	}

	task, err := queue.GetTask(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}

	c.JSON(http.StatusOK, task)
}
