package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/shubham-shewale/stock-tracker/pkg/models"
)

const keyPrefix = "state:"

// Compile-time check to ensure RedisStore implements StateStore
var _ StateStore = (*RedisStore)(nil)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func stateKey(owner, kind string) string {
	return keyPrefix + owner + ":" + kind
}

func (r *RedisStore) LoadAlerts(ctx context.Context, owner string) ([]models.Alert, error) {
	var alerts []models.Alert
	if err := r.getJSON(ctx, owner, "alerts", &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

func (r *RedisStore) SaveAlerts(ctx context.Context, owner string, alerts []models.Alert) error {
	return r.setJSON(ctx, owner, "alerts", alerts)
}

func (r *RedisStore) LoadWatchlist(ctx context.Context, owner string) ([]string, error) {
	var symbols []string
	if err := r.getJSON(ctx, owner, "watchlist", &symbols); err != nil {
		return nil, err
	}
	return symbols, nil
}

func (r *RedisStore) SaveWatchlist(ctx context.Context, owner string, symbols []string) error {
	return r.setJSON(ctx, owner, "watchlist", symbols)
}

// LoadPortfolio returns holdings in purchase order.
func (r *RedisStore) LoadPortfolio(ctx context.Context, owner string) ([]models.Holding, error) {
	if owner == "" {
		return nil, ErrNoOwner
	}
	raw, err := r.client.LRange(ctx, stateKey(owner, "portfolio"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load portfolio: %w", err)
	}

	holdings := make([]models.Holding, 0, len(raw))
	for _, item := range raw {
		var h models.Holding
		if err := json.Unmarshal([]byte(item), &h); err != nil {
			return nil, fmt.Errorf("decode holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	return holdings, nil
}

func (r *RedisStore) AddHolding(ctx context.Context, owner string, h models.Holding) error {
	if owner == "" {
		return ErrNoOwner
	}
	payload, err := json.Marshal(h)
	if err != nil {
		return err
	}
	if err := r.client.RPush(ctx, stateKey(owner, "portfolio"), payload).Err(); err != nil {
		return fmt.Errorf("add holding: %w", err)
	}
	return nil
}

// AlertHistory reads the list maintained by the alert processor.
func (r *RedisStore) AlertHistory(ctx context.Context, symbol string, limit int) ([]models.AlertEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	raw, err := r.client.LRange(ctx, models.AlertHistoryKey(symbol), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("load alert history: %w", err)
	}

	events := make([]models.AlertEvent, 0, len(raw))
	for _, item := range raw {
		var ev models.AlertEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) getJSON(ctx context.Context, owner, kind string, dst interface{}) error {
	if owner == "" {
		return ErrNoOwner
	}
	payload, err := r.client.Get(ctx, stateKey(owner, kind)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", kind, err)
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("decode %s: %w", kind, err)
	}
	return nil
}

func (r *RedisStore) setJSON(ctx context.Context, owner, kind string, v interface{}) error {
	if owner == "" {
		return ErrNoOwner
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, stateKey(owner, kind), payload, 0).Err(); err != nil {
		return fmt.Errorf("save %s: %w", kind, err)
	}
	return nil
}
