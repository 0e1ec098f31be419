package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBucketFor tests bucket assignment including the exact boundaries
func TestBucketFor(t *testing.T) {
	ranker := NewRanker(DefaultEngineConfig())

	tests := []struct {
		name     string
		score    float64
		distance float64
		expected RelevanceBucket
	}{
		{"High score, very close", 9.0, 1.0, BucketTopBoth},
		{"Boundary: score 8.0 at 2.0 km", 8.0, 2.0, BucketTopBoth},
		{"High score, close", 8.5, 4.0, BucketTopNear},
		{"Boundary: score 8.0 at 5.0 km", 8.0, 5.0, BucketTopNear},
		{"Decent score, very close", 6.0, 1.5, BucketGoodClose},
		{"Boundary: score 5.0 at 2.0 km", 5.0, 2.0, BucketGoodClose},
		{"High score, far", 8.0, 30.0, BucketTopScore},
		{"Decent score, close", 6.0, 4.0, BucketGoodNear},
		{"Low score, very close", 3.0, 1.0, BucketCloseOnly},
		{"Boundary: score 4.9 just below decent", 4.9, 2.0, BucketCloseOnly},
		{"Low score, far", 2.0, 20.0, BucketRemainder},
		{"Decent score, too far for its tier", 6.0, 10.0, BucketRemainder},
		{"Just under high score, very close", 7.9, 1.0, BucketGoodClose},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ranker.BucketFor(tt.score, tt.distance))
		})
	}
}

// TestRankOrdering tests the full sort: bucket, then distance, then id
func TestRankOrdering(t *testing.T) {
	ranker := NewRanker(DefaultEngineConfig())

	deals := []DealWithDistance{
		{Deal: Deal{ID: 1, SustainabilityScore: 2.0}, DistanceKm: 20.0}, // bucket 7
		{Deal: Deal{ID: 2, SustainabilityScore: 9.0}, DistanceKm: 1.0},  // bucket 1
		{Deal: Deal{ID: 3, SustainabilityScore: 6.0}, DistanceKm: 4.0},  // bucket 5
		{Deal: Deal{ID: 4, SustainabilityScore: 9.0}, DistanceKm: 0.5},  // bucket 1, closer
		{Deal: Deal{ID: 5, SustainabilityScore: 8.5}, DistanceKm: 12.0}, // bucket 4
		{Deal: Deal{ID: 6, SustainabilityScore: 3.0}, DistanceKm: 1.2},  // bucket 6
	}

	ranker.Rank(deals)

	got := make([]int64, len(deals))
	for i, d := range deals {
		got[i] = d.ID
	}
	assert.Equal(t, []int64{4, 2, 5, 3, 6, 1}, got)
}

// TestRankBucketBeatsDistance verifies a better bucket always wins, even
// against a closer deal
func TestRankBucketBeatsDistance(t *testing.T) {
	ranker := NewRanker(DefaultEngineConfig())

	deals := []DealWithDistance{
		{Deal: Deal{ID: 1, SustainabilityScore: 6.0}, DistanceKm: 0.5},
		{Deal: Deal{ID: 2, SustainabilityScore: 8.5}, DistanceKm: 1.0},
	}

	ranker.Rank(deals)

	assert.Equal(t, int64(2), deals[0].ID)
	assert.Equal(t, int64(1), deals[1].ID)
}

// TestRankTieBreaks verifies distance then id within one bucket
func TestRankTieBreaks(t *testing.T) {
	ranker := NewRanker(DefaultEngineConfig())

	deals := []DealWithDistance{
		{Deal: Deal{ID: 30, SustainabilityScore: 9.0}, DistanceKm: 1.0},
		{Deal: Deal{ID: 10, SustainabilityScore: 9.0}, DistanceKm: 1.0},
		{Deal: Deal{ID: 20, SustainabilityScore: 9.0}, DistanceKm: 0.4},
	}

	ranker.Rank(deals)

	require.Len(t, deals, 3)
	assert.Equal(t, int64(20), deals[0].ID)
	assert.Equal(t, int64(10), deals[1].ID)
	assert.Equal(t, int64(30), deals[2].ID)
}

// TestRankIdempotent verifies ranking an already ranked slice changes nothing
func TestRankIdempotent(t *testing.T) {
	ranker := NewRanker(DefaultEngineConfig())

	deals := []DealWithDistance{
		{Deal: Deal{ID: 1, SustainabilityScore: 9.0}, DistanceKm: 1.0},
		{Deal: Deal{ID: 2, SustainabilityScore: 5.0}, DistanceKm: 3.0},
		{Deal: Deal{ID: 3, SustainabilityScore: 2.0}, DistanceKm: 8.0},
	}

	ranker.Rank(deals)
	first := make([]int64, len(deals))
	for i, d := range deals {
		first[i] = d.ID
	}

	ranker.Rank(deals)
	second := make([]int64, len(deals))
	for i, d := range deals {
		second[i] = d.ID
	}

	assert.Equal(t, first, second)
}
