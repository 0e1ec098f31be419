package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dealopia/deals-service/internal/engine"
)

// NearbyDealsRequest represents query parameters for the nearby deals search
type NearbyDealsRequest struct {
	Latitude          float64 `form:"lat"`
	Longitude         float64 `form:"lng"`
	RadiusKm          float64 `form:"radius"`
	Limit             int     `form:"limit"`
	MinSustainability float64 `form:"minSustainability"`
	Categories        string  `form:"categories"` // comma-separated category ids
}

// DealResponse is the JSON shape of one deal
type DealResponse struct {
	ID                  int64    `json:"id"`
	ShopID              int64    `json:"shopId"`
	Title               string   `json:"title"`
	CategoryIDs         []int64  `json:"categoryIds"`
	OriginalPrice       int64    `json:"originalPrice"`
	DiscountedPrice     int64    `json:"discountedPrice"`
	DiscountPercentage  int      `json:"discountPercentage"`
	StartDate           string   `json:"startDate"`
	EndDate             string   `json:"endDate"`
	IsFeatured          bool     `json:"isFeatured"`
	SustainabilityScore float64  `json:"sustainabilityScore"`
	EcoCertifications   []string `json:"ecoCertifications"`
	LocalProduction     bool     `json:"localProduction"`
	DistanceKm          *float64 `json:"distanceKm,omitempty"`
}

// DealsResponse is the JSON envelope for deal listings
type DealsResponse struct {
	Deals []DealResponse `json:"deals"`
	Total int            `json:"total"`
}

func toDealResponse(d engine.Deal) DealResponse {
	certs := d.EcoCertifications
	if certs == nil {
		certs = []string{}
	}
	cats := d.CategoryIDs
	if cats == nil {
		cats = []int64{}
	}
	return DealResponse{
		ID:                  d.ID,
		ShopID:              d.ShopID,
		Title:               d.Title,
		CategoryIDs:         cats,
		OriginalPrice:       d.OriginalPrice,
		DiscountedPrice:     d.DiscountedPrice,
		DiscountPercentage:  d.DiscountPercentage,
		StartDate:           d.StartDate.UTC().Format(time.RFC3339),
		EndDate:             d.EndDate.UTC().Format(time.RFC3339),
		IsFeatured:          d.IsFeatured,
		SustainabilityScore: d.SustainabilityScore,
		EcoCertifications:   certs,
		LocalProduction:     d.LocalProduction,
	}
}

func toDealsResponse(deals []engine.Deal) DealsResponse {
	out := make([]DealResponse, len(deals))
	for i, d := range deals {
		out[i] = toDealResponse(d)
	}
	return DealsResponse{Deals: out, Total: len(out)}
}

// GetNearbyDeals returns ranked active deals around a point
// GET /api/deals/nearby?lat=45.81&lng=15.98&radius=5&limit=20
//
// The endpoint is fail-soft on bad coordinates: garbage input yields an
// empty listing, not an error page.
func GetNearbyDeals(c *gin.Context) {
	var req NearbyDealsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusOK, DealsResponse{Deals: []DealResponse{}})
		return
	}

	query := engine.NearbyQuery{
		Latitude:          req.Latitude,
		Longitude:         req.Longitude,
		RadiusKm:          req.RadiusKm,
		Limit:             req.Limit,
		MinSustainability: req.MinSustainability,
		CategoryIDs:       parseCategoryList(req.Categories),
	}

	deals, err := eng.FindNear(c.Request.Context(), query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query nearby deals"})
		return
	}

	out := make([]DealResponse, len(deals))
	for i, d := range deals {
		out[i] = toDealResponse(d.Deal)
		dist := d.DistanceKm
		out[i].DistanceKm = &dist
	}
	c.JSON(http.StatusOK, DealsResponse{Deals: out, Total: len(out)})
}

// GetFeaturedDeals returns active featured deals, newest first
// GET /api/deals/featured?limit=10&categoryId=3
func GetFeaturedDeals(c *gin.Context) {
	limit := intQuery(c, "limit", 10)
	categoryID, ok := int64Query(c, "categoryId", 0)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "categoryId must be an integer"})
		return
	}

	deals, err := eng.FindFeatured(c.Request.Context(), limit, categoryID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query featured deals"})
		return
	}
	c.JSON(http.StatusOK, toDealsResponse(deals))
}

// GetSustainableDeals returns active deals above a sustainability threshold
// GET /api/deals/sustainable?minScore=7&limit=20
func GetSustainableDeals(c *gin.Context) {
	limit := intQuery(c, "limit", 20)

	minScore := 7.0
	if raw := c.Query("minScore"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "minScore must be a number"})
			return
		}
		minScore = parsed
	}

	deals, err := eng.FindSustainable(c.Request.Context(), minScore, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query sustainable deals"})
		return
	}
	c.JSON(http.StatusOK, toDealsResponse(deals))
}

// GetRelatedDeals returns deals related to one deal
// GET /api/deals/:dealId/related?limit=4
func GetRelatedDeals(c *gin.Context) {
	dealID, err := strconv.ParseInt(c.Param("dealId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dealId must be an integer"})
		return
	}
	limit := intQuery(c, "limit", 4)

	deals, err := eng.FindRelated(c.Request.Context(), dealID, limit)
	if errors.Is(err, engine.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Deal not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query related deals"})
		return
	}
	c.JSON(http.StatusOK, toDealsResponse(deals))
}

// GetDealsByCategory returns active deals in one category, newest first
// GET /api/categories/:categoryId/deals?limit=20
func GetDealsByCategory(c *gin.Context) {
	categoryID, err := strconv.ParseInt(c.Param("categoryId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "categoryId must be an integer"})
		return
	}
	limit := intQuery(c, "limit", 20)

	deals, err := eng.FindDealsByCategory(c.Request.Context(), categoryID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query category deals"})
		return
	}
	c.JSON(http.StatusOK, toDealsResponse(deals))
}

// parseCategoryList parses "1,2,3" into ids, dropping anything unparsable.
func parseCategoryList(raw string) []int64 {
	if raw == "" {
		return nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func int64Query(c *gin.Context, name string, fallback int64) (int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
