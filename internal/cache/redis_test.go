package cache

import (
	"context"
	"testing"
	"time"

	"stock-ledger-service/internal/availability"
	"stock-ledger-service/internal/models"
	"stock-ledger-service/pkg/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAvailabilityKey(t *testing.T) {
	pid := uuid.MustParse("0b6f3c59-8d3e-4a47-9b0e-1b4f1c7d9a10")
	r := models.DateRange{
		Start: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
	}

	assert.Equal(t, "ledger:gen:0b6f3c59-8d3e-4a47-9b0e-1b4f1c7d9a10", generationKey(pid))
	assert.Equal(t,
		"ledger:avail:0b6f3c59-8d3e-4a47-9b0e-1b4f1c7d9a10:7:2024-06-01:2024-06-03",
		availabilityKey(pid, 7, r))

	// новое поколение — новый ключ
	assert.NotEqual(t, availabilityKey(pid, 7, r), availabilityKey(pid, 8, r))
}

func newTestCache(t *testing.T) *AvailabilityCache {
	t.Helper()
	addr := testutil.SetupTestRedis(t)
	rc, err := NewRedisClient(addr, "", 0, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	return NewAvailabilityCache(rc, time.Minute)
}

func TestAvailabilityCache_Redis(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	pid, other := uuid.New(), uuid.New()
	r := models.DateRange{
		Start: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC),
	}
	days := []availability.Day{
		{Date: r.Start, TotalAvailable: 10, BulkAvailable: 10, Conflicts: []availability.Conflict{}},
		{Date: r.End, TotalAvailable: 6, BulkAvailable: 6, BulkReserved: 4, Conflicts: []availability.Conflict{{AssignmentID: uuid.New(), Kind: models.AssignmentBulk, Quantity: 4}}},
	}

	got, key, err := c.Lookup(ctx, pid, r)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, availabilityKey(pid, 0, r), key)

	require.NoError(t, c.Store(ctx, key, days))
	ttl, err := c.rdb.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	got, key2, err := c.Lookup(ctx, pid, r)
	require.NoError(t, err)
	assert.Equal(t, key, key2)
	require.Len(t, got, 2)
	assert.True(t, got[1].Date.Equal(r.End))
	assert.Equal(t, int32(6), got[1].TotalAvailable)
	assert.Equal(t, int32(4), got[1].BulkReserved)
	require.Len(t, got[1].Conflicts, 1)
	assert.Equal(t, days[1].Conflicts[0].AssignmentID, got[1].Conflicts[0].AssignmentID)

	otherKey := availabilityKey(other, 0, r)
	require.NoError(t, c.Store(ctx, otherKey, days[:1]))

	// после записи по товару старый ключ больше не читается
	require.NoError(t, c.Invalidate(ctx, pid))
	got, key3, err := c.Lookup(ctx, pid, r)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, availabilityKey(pid, 1, r), key3)

	got, _, err = c.Lookup(ctx, other, r)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestAvailabilityCache_CorruptEntryIsMiss(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	pid := uuid.New()
	r := models.DateRange{
		Start: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, c.rdb.Set(ctx, availabilityKey(pid, 0, r), "not json", time.Minute).Err())

	got, key, err := c.Lookup(ctx, pid, r)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, availabilityKey(pid, 0, r), key)
}
