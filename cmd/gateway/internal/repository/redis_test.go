package repository_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shubham-shewale/stock-tracker/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/stock-tracker/pkg/models"
)

func newStore(t *testing.T) (*repository.RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := repository.NewRedisStore(rdb)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisStore_AlertsRoundTrip(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	empty, err := store.LoadAlerts(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, empty)

	alerts := []models.Alert{{Symbol: "AAPL", TargetPrice: 150.5}, {Symbol: "AAPL", TargetPrice: 150.5}}
	require.NoError(t, store.SaveAlerts(ctx, "alice", alerts))

	got, err := store.LoadAlerts(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alerts, got)

	other, err := store.LoadAlerts(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestRedisStore_Watchlist(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveWatchlist(ctx, "alice", []string{"AAPL", "GOOG"}))
	assert.True(t, mr.Exists("state:alice:watchlist"))

	got, err := store.LoadWatchlist(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "GOOG"}, got)
}

func TestRedisStore_Portfolio(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddHolding(ctx, "alice", models.Holding{Symbol: "TSLA", Quantity: 2, Price: 700}))
	require.NoError(t, store.AddHolding(ctx, "alice", models.Holding{Symbol: "AAPL", Quantity: 1, Price: 150}))

	got, err := store.LoadPortfolio(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "TSLA", got[0].Symbol)
	assert.Equal(t, "AAPL", got[1].Symbol)
}

func TestRedisStore_RequiresOwner(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	_, err := store.LoadAlerts(ctx, "")
	assert.ErrorIs(t, err, repository.ErrNoOwner)
	assert.ErrorIs(t, store.SaveWatchlist(ctx, "", nil), repository.ErrNoOwner)
	assert.ErrorIs(t, store.AddHolding(ctx, "", models.Holding{}), repository.ErrNoOwner)
}

func TestRedisStore_AlertHistory(t *testing.T) {
	store, mr := newStore(t)

	for seq := int64(1); seq <= 3; seq++ {
		b, _ := json.Marshal(models.AlertEvent{Symbol: "AAPL", SeqID: seq})
		mr.Lpush(models.AlertHistoryKey("AAPL"), string(b))
	}
	mr.Lpush(models.AlertHistoryKey("AAPL"), "{not json")

	got, err := store.AlertHistory(context.Background(), "AAPL", 3)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].SeqID)
}
