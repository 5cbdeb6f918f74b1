package repository

import (
	"context"
	"errors"

	"github.com/shubham-shewale/stock-tracker/pkg/models"
)

// ErrNoOwner is returned when state is requested without an owner key.
var ErrNoOwner = errors.New("owner key is required")

// StateStore is the key-value collaborator holding what a user keeps between
// sessions: alerts, watchlist and portfolio. Missing keys read as empty.
type StateStore interface {
	LoadAlerts(ctx context.Context, owner string) ([]models.Alert, error)
	SaveAlerts(ctx context.Context, owner string, alerts []models.Alert) error

	LoadWatchlist(ctx context.Context, owner string) ([]string, error)
	SaveWatchlist(ctx context.Context, owner string, symbols []string) error

	LoadPortfolio(ctx context.Context, owner string) ([]models.Holding, error)
	AddHolding(ctx context.Context, owner string, h models.Holding) error

	AlertHistory(ctx context.Context, symbol string, limit int) ([]models.AlertEvent, error)

	Close() error
}
