package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealopia/deals-service/internal/engine"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// stubSource is a canned-response engine.DealSource for handler tests.
type stubSource struct {
	nearby      []engine.DealWithDistance
	featured    []engine.Deal
	sustainable []engine.Deal
	byCategory  []engine.Deal
	sharing     []engine.Deal
	deals       map[int64]*engine.Deal

	interactions []engine.InteractionKind
}

func (s *stubSource) ActiveDealsNear(context.Context, float64, float64, float64, time.Time) ([]engine.DealWithDistance, error) {
	return s.nearby, nil
}

func (s *stubSource) ActiveFeatured(context.Context, int, int64, time.Time) ([]engine.Deal, error) {
	return s.featured, nil
}

func (s *stubSource) ActiveSustainable(context.Context, float64, int, time.Time) ([]engine.Deal, error) {
	return s.sustainable, nil
}

func (s *stubSource) ActiveByCategory(context.Context, int64, int, time.Time) ([]engine.Deal, error) {
	return s.byCategory, nil
}

func (s *stubSource) ActiveSharingCategories(context.Context, int64, []int64, time.Time) ([]engine.Deal, error) {
	return s.sharing, nil
}

func (s *stubSource) DealByID(_ context.Context, id int64) (*engine.Deal, error) {
	d, ok := s.deals[id]
	if !ok {
		return nil, engine.ErrNotFound
	}
	return d, nil
}

func (s *stubSource) ShopByID(context.Context, int64) (*engine.Shop, error) {
	return nil, engine.ErrNotFound
}

func (s *stubSource) CategoriesByIDs(context.Context, []int64) ([]engine.Category, error) {
	return nil, nil
}

func (s *stubSource) IncrementInteraction(_ context.Context, dealID int64, kind engine.InteractionKind) error {
	if _, ok := s.deals[dealID]; !ok {
		return engine.ErrNotFound
	}
	s.interactions = append(s.interactions, kind)
	return nil
}

func (s *stubSource) SaveSustainabilityScore(_ context.Context, dealID int64, _ float64) error {
	if _, ok := s.deals[dealID]; !ok {
		return engine.ErrNotFound
	}
	return nil
}

func liveDeal(id, shopID int64, score float64) engine.Deal {
	now := time.Now()
	return engine.Deal{
		ID:                  id,
		ShopID:              shopID,
		Title:               "Test deal",
		IsVerified:          true,
		StartDate:           now.Add(-24 * time.Hour),
		EndDate:             now.Add(24 * time.Hour),
		SustainabilityScore: score,
		CreatedAt:           now.Add(-48 * time.Hour),
	}
}

func setupRouter(t *testing.T, source engine.DealSource) *gin.Engine {
	t.Helper()
	Init(engine.New(source, nil, nil), nil)

	router := gin.New()
	router.GET("/api/deals/nearby", GetNearbyDeals)
	router.GET("/api/deals/featured", GetFeaturedDeals)
	router.GET("/api/deals/sustainable", GetSustainableDeals)
	router.GET("/api/deals/:dealId/related", GetRelatedDeals)
	router.POST("/api/deals/:dealId/interactions", RecordInteraction)
	router.GET("/api/categories/:categoryId/deals", GetDealsByCategory)
	return router
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeDeals(t *testing.T, w *httptest.ResponseRecorder) DealsResponse {
	t.Helper()
	var resp DealsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestGetNearbyDeals(t *testing.T) {
	source := &stubSource{
		nearby: []engine.DealWithDistance{
			{Deal: liveDeal(1, 1, 9.0), DistanceKm: 1.2},
		},
	}
	router := setupRouter(t, source)

	w := doRequest(router, http.MethodGet, "/api/deals/nearby?lat=45.81&lng=15.98&radius=5&limit=10", "")

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeDeals(t, w)
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, int64(1), resp.Deals[0].ID)
	require.NotNil(t, resp.Deals[0].DistanceKm)
	assert.InDelta(t, 1.2, *resp.Deals[0].DistanceKm, 0.001)
}

func TestGetNearbyDealsBadCoordinatesFailSoft(t *testing.T) {
	source := &stubSource{
		nearby: []engine.DealWithDistance{
			{Deal: liveDeal(1, 1, 9.0), DistanceKm: 1.2},
		},
	}
	router := setupRouter(t, source)

	w := doRequest(router, http.MethodGet, "/api/deals/nearby?lat=400&lng=15.98&radius=5", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, decodeDeals(t, w).Total)
}

func TestGetNearbyDealsUnparsableQueryFailSoft(t *testing.T) {
	router := setupRouter(t, &stubSource{})

	w := doRequest(router, http.MethodGet, "/api/deals/nearby?lat=abc", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, decodeDeals(t, w).Total)
}

func TestGetFeaturedDeals(t *testing.T) {
	source := &stubSource{
		featured: []engine.Deal{liveDeal(1, 1, 7.0), liveDeal(2, 1, 6.0)},
	}
	router := setupRouter(t, source)

	w := doRequest(router, http.MethodGet, "/api/deals/featured?limit=10", "")

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeDeals(t, w)
	assert.Equal(t, 2, resp.Total)
	// Empty slices serialize as [], never null.
	assert.Equal(t, []int64{}, resp.Deals[0].CategoryIDs)
	assert.Equal(t, []string{}, resp.Deals[0].EcoCertifications)
	assert.Nil(t, resp.Deals[0].DistanceKm)
}

func TestGetFeaturedDealsBadCategoryID(t *testing.T) {
	router := setupRouter(t, &stubSource{})

	w := doRequest(router, http.MethodGet, "/api/deals/featured?categoryId=abc", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSustainableDeals(t *testing.T) {
	source := &stubSource{
		sustainable: []engine.Deal{liveDeal(1, 1, 9.5)},
	}
	router := setupRouter(t, source)

	w := doRequest(router, http.MethodGet, "/api/deals/sustainable", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decodeDeals(t, w).Total)
}

func TestGetSustainableDealsBadMinScore(t *testing.T) {
	router := setupRouter(t, &stubSource{})

	w := doRequest(router, http.MethodGet, "/api/deals/sustainable?minScore=high", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetRelatedDeals(t *testing.T) {
	deal := liveDeal(1, 10, 5.0)
	deal.CategoryIDs = []int64{20}
	source := &stubSource{
		deals:   map[int64]*engine.Deal{1: &deal},
		sharing: []engine.Deal{liveDeal(2, 10, 5.0)},
	}
	router := setupRouter(t, source)

	w := doRequest(router, http.MethodGet, "/api/deals/1/related", "")

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeDeals(t, w)
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, int64(2), resp.Deals[0].ID)
}

func TestGetRelatedDealsNotFound(t *testing.T) {
	router := setupRouter(t, &stubSource{deals: map[int64]*engine.Deal{}})

	w := doRequest(router, http.MethodGet, "/api/deals/999/related", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetRelatedDealsBadID(t *testing.T) {
	router := setupRouter(t, &stubSource{})

	w := doRequest(router, http.MethodGet, "/api/deals/abc/related", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetDealsByCategory(t *testing.T) {
	source := &stubSource{
		byCategory: []engine.Deal{liveDeal(1, 1, 5.0)},
	}
	router := setupRouter(t, source)

	w := doRequest(router, http.MethodGet, "/api/categories/10/deals", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decodeDeals(t, w).Total)
}

func TestRecordInteraction(t *testing.T) {
	deal := liveDeal(1, 1, 5.0)
	source := &stubSource{deals: map[int64]*engine.Deal{1: &deal}}
	router := setupRouter(t, source)

	w := doRequest(router, http.MethodPost, "/api/deals/1/interactions", `{"kind":"view"}`)

	assert.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, source.interactions, 1)
	assert.Equal(t, engine.InteractionView, source.interactions[0])
}

func TestRecordInteractionInvalidKind(t *testing.T) {
	deal := liveDeal(1, 1, 5.0)
	router := setupRouter(t, &stubSource{deals: map[int64]*engine.Deal{1: &deal}})

	w := doRequest(router, http.MethodPost, "/api/deals/1/interactions", `{"kind":"like"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecordInteractionMissingBody(t *testing.T) {
	router := setupRouter(t, &stubSource{})

	w := doRequest(router, http.MethodPost, "/api/deals/1/interactions", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecordInteractionUnknownDeal(t *testing.T) {
	router := setupRouter(t, &stubSource{deals: map[int64]*engine.Deal{}})

	w := doRequest(router, http.MethodPost, "/api/deals/999/interactions", `{"kind":"click"}`)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// downSource fails every listing query, as a dead database would.
type downSource struct {
	*stubSource
}

func (s *downSource) ActiveDealsNear(context.Context, float64, float64, float64, time.Time) ([]engine.DealWithDistance, error) {
	return nil, errors.New("connection refused")
}

func (s *downSource) ActiveFeatured(context.Context, int, int64, time.Time) ([]engine.Deal, error) {
	return nil, errors.New("connection refused")
}

func TestGetNearbyDealsStoreFailureReturns500(t *testing.T) {
	router := setupRouter(t, &downSource{stubSource: &stubSource{}})

	w := doRequest(router, http.MethodGet, "/api/deals/nearby?lat=45.81&lng=15.98&radius=5&limit=10", "")

	// A backing-store failure is a 500, never an empty 200.
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "error")
}

func TestGetFeaturedDealsStoreFailureReturns500(t *testing.T) {
	router := setupRouter(t, &downSource{stubSource: &stubSource{}})

	w := doRequest(router, http.MethodGet, "/api/deals/featured", "")

	require.Equal(t, http.StatusInternalServerError, w.Code)
}
