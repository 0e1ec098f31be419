package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testValue struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestLayerPutGetRoundtrip(t *testing.T) {
	layer := NewLayer(NewMemoryBackend(), time.Hour)
	ctx := context.Background()

	layer.Put(ctx, "deals:1", testValue{Name: "organic honey", Count: 3}, time.Minute, GroupFeatured)

	var got testValue
	require.True(t, layer.Get(ctx, "deals:1", &got))
	assert.Equal(t, testValue{Name: "organic honey", Count: 3}, got)
}

func TestLayerGetMiss(t *testing.T) {
	layer := NewLayer(NewMemoryBackend(), time.Hour)

	var got testValue
	assert.False(t, layer.Get(context.Background(), "absent", &got))
}

func TestLayerGetDropsUndecodableEntry(t *testing.T) {
	backend := NewMemoryBackend()
	layer := NewLayer(backend, time.Hour)
	ctx := context.Background()

	require.NoError(t, backend.Set(ctx, "broken", []byte("{not json"), time.Minute))

	var got testValue
	assert.False(t, layer.Get(ctx, "broken", &got))

	// The entry was deleted, not just skipped.
	_, err := backend.Get(ctx, "broken")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestLayerPutRegistersGroupsBeforeWrite(t *testing.T) {
	backend := NewMemoryBackend()
	layer := NewLayer(backend, time.Hour)
	ctx := context.Background()

	layer.Put(ctx, "deals:1", testValue{Name: "a"}, time.Minute, GroupFeatured, CategoryGroup(10))

	members, err := backend.SetMembers(ctx, groupKeyPrefix+GroupFeatured)
	require.NoError(t, err)
	assert.Contains(t, members, "deals:1")

	members, err = backend.SetMembers(ctx, groupKeyPrefix+CategoryGroup(10))
	require.NoError(t, err)
	assert.Contains(t, members, "deals:1")
}

func TestLayerPutSkipsWriteOnRegistrationFailure(t *testing.T) {
	backend := &failingSetAddBackend{MemoryBackend: NewMemoryBackend()}
	layer := NewLayer(backend, time.Hour)
	ctx := context.Background()

	layer.Put(ctx, "deals:1", testValue{Name: "a"}, time.Minute, GroupFeatured)

	// An unregistered key must never become readable: it would survive
	// group invalidation.
	var got testValue
	assert.False(t, layer.Get(ctx, "deals:1", &got))
}

func TestLayerInvalidateGroup(t *testing.T) {
	layer := NewLayer(NewMemoryBackend(), time.Hour)
	ctx := context.Background()

	layer.Put(ctx, "deals:1", testValue{Name: "a"}, time.Minute, GroupFeatured)
	layer.Put(ctx, "deals:2", testValue{Name: "b"}, time.Minute, GroupFeatured)
	layer.Put(ctx, "deals:3", testValue{Name: "c"}, time.Minute, GroupSustainable)

	require.NoError(t, layer.InvalidateGroup(ctx, GroupFeatured))

	var got testValue
	assert.False(t, layer.Get(ctx, "deals:1", &got))
	assert.False(t, layer.Get(ctx, "deals:2", &got))
	assert.True(t, layer.Get(ctx, "deals:3", &got))

	size, err := layer.GroupSize(ctx, GroupFeatured)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestLayerGroupSize(t *testing.T) {
	layer := NewLayer(NewMemoryBackend(), time.Hour)
	ctx := context.Background()

	size, err := layer.GroupSize(ctx, GroupNearby)
	require.NoError(t, err)
	assert.Zero(t, size)

	layer.Put(ctx, "deals:1", testValue{}, time.Minute, GroupNearby)
	layer.Put(ctx, "deals:2", testValue{}, time.Minute, GroupNearby)

	size, err = layer.GroupSize(ctx, GroupNearby)
	require.NoError(t, err)
	assert.Equal(t, 2, size)
}

func TestNilLayerIsDisabledCache(t *testing.T) {
	var layer *Layer
	ctx := context.Background()

	layer.Put(ctx, "deals:1", testValue{Name: "a"}, time.Minute, GroupFeatured)

	var got testValue
	assert.False(t, layer.Get(ctx, "deals:1", &got))
	assert.NoError(t, layer.InvalidateGroup(ctx, GroupFeatured))

	size, err := layer.GroupSize(ctx, GroupFeatured)
	assert.NoError(t, err)
	assert.Zero(t, size)
}

func TestCachedComputesOnce(t *testing.T) {
	layer := NewLayer(NewMemoryBackend(), time.Hour)
	ctx := context.Background()
	calls := 0

	compute := func(context.Context) (testValue, error) {
		calls++
		return testValue{Name: "computed", Count: calls}, nil
	}

	first, err := Cached(ctx, layer, "memo:1", time.Minute, []string{GroupFeatured}, compute)
	require.NoError(t, err)
	second, err := Cached(ctx, layer, "memo:1", time.Minute, []string{GroupFeatured}, compute)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
}

func TestCachedPropagatesComputeError(t *testing.T) {
	layer := NewLayer(NewMemoryBackend(), time.Hour)
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := Cached(ctx, layer, "memo:1", time.Minute, nil, func(context.Context) (testValue, error) {
		return testValue{}, boom
	})
	require.ErrorIs(t, err, boom)

	// Failed computations are never stored.
	calls := 0
	_, err = Cached(ctx, layer, "memo:1", time.Minute, nil, func(context.Context) (testValue, error) {
		calls++
		return testValue{Name: "ok"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestCachedNilLayerAlwaysComputes(t *testing.T) {
	ctx := context.Background()
	calls := 0

	compute := func(context.Context) (testValue, error) {
		calls++
		return testValue{Name: "direct"}, nil
	}

	_, err := Cached[testValue](ctx, nil, "memo:1", time.Minute, nil, compute)
	require.NoError(t, err)
	_, err = Cached[testValue](ctx, nil, "memo:1", time.Minute, nil, compute)
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
}

func TestOpLabel(t *testing.T) {
	assert.Equal(t, "nearby_deals", opLabel("nearby_deals:45.8150:15.9819:5:20"))
	assert.Equal(t, "plain", opLabel("plain"))
}

// failingSetAddBackend rejects group registrations to exercise the
// register-before-write invariant.
type failingSetAddBackend struct {
	*MemoryBackend
}

func (f *failingSetAddBackend) SetAdd(context.Context, string, time.Duration, ...string) error {
	return errors.New("set add refused")
}
