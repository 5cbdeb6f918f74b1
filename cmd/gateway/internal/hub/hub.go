package hub

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-tracker/cmd/gateway/internal/protocol"
	"github.com/shubham-shewale/stock-tracker/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/stock-tracker/pkg/models"
)

const storeTimeout = 2 * time.Second

type ClientInterface interface {
	Subscriber
	// Owner scopes persisted state; empty for anonymous connections.
	Owner() string
	Close()
}

// Hub turns control messages into registry and alert-set operations.
type Hub struct {
	registry     *Registry
	store        repository.StateStore
	logger       *zap.Logger
	interval     time.Duration
	validTickers map[string]bool
}

// NewHub wires the command layer. store may be nil, in which case nothing is persisted.
func NewHub(registry *Registry, store repository.StateStore, logger *zap.Logger,
	interval time.Duration, validTickers map[string]bool) *Hub {
	return &Hub{
		registry:     registry,
		store:        store,
		logger:       logger,
		interval:     interval,
		validTickers: validTickers,
	}
}

func (h *Hub) Registry() *Registry { return h.registry }

func (h *Hub) HandleCommand(client ClientInterface, req protocol.WSRequest) {
	switch req.Action {
	case protocol.ActionTrackStock:
		h.handleTrack(client, req)
	case protocol.ActionUntrackStock:
		h.handleUntrack(client, req)
	case protocol.ActionUntrackAll:
		h.handleUntrackAll(client, req)
	case protocol.ActionAddAlert:
		h.handleAddAlert(client, req)
	case protocol.ActionRemoveAlert:
		h.handleRemoveAlert(client, req)
	case protocol.ActionListAlerts:
		h.sendAckData(client, req.ID, "Active alerts", client.AlertSet().Snapshot())
	default:
		h.sendError(client, req.ID, "Unknown action: "+req.Action)
	}
}

// Restore loads an owner's saved alerts and re-tracks the saved watchlist.
func (h *Hub) Restore(ctx context.Context, client ClientInterface) error {
	owner := client.Owner()
	if owner == "" || h.store == nil {
		return nil
	}

	alerts, err := h.store.LoadAlerts(ctx, owner)
	if err != nil {
		return fmt.Errorf("restore alerts: %w", err)
	}
	client.AlertSet().Replace(alerts)

	watchlist, err := h.store.LoadWatchlist(ctx, owner)
	if err != nil {
		return fmt.Errorf("restore watchlist: %w", err)
	}
	for _, sym := range watchlist {
		if _, err := h.registry.Subscribe(client, sym, h.interval); err != nil {
			h.logger.Warn("Skipping saved symbol", zap.String("owner", owner), zap.String("symbol", sym), zap.Error(err))
		}
	}

	h.logger.Info("Restored session state",
		zap.String("owner", owner), zap.Int("alerts", len(alerts)), zap.Int("symbols", len(watchlist)))
	return nil
}

// Unregister closes the client first, so a racing Subscribe sees IsClosed,
// then releases everything the connection owns.
func (h *Hub) Unregister(client ClientInterface) {
	client.Close()
	h.registry.ReleaseConnection(client.ID())
}

func (h *Hub) handleTrack(client ClientInterface, req protocol.WSRequest) {
	sym, err := models.NormalizeSymbol(req.Payload.Symbol)
	if err != nil {
		h.sendError(client, req.ID, err.Error())
		return
	}
	if len(h.validTickers) > 0 && !h.validTickers[sym] {
		h.sendError(client, req.ID, "Unsupported symbol: "+sym)
		return
	}

	created, err := h.registry.Subscribe(client, sym, h.interval)
	if err != nil {
		h.sendError(client, req.ID, err.Error())
		return
	}
	if !created {
		h.sendAck(client, req.ID, "Already tracking "+sym)
		return
	}

	h.persistWatchlist(client)
	h.sendAck(client, req.ID, "Tracking "+sym)
}

func (h *Hub) handleUntrack(client ClientInterface, req protocol.WSRequest) {
	sym, err := models.NormalizeSymbol(req.Payload.Symbol)
	if err != nil {
		h.sendError(client, req.ID, err.Error())
		return
	}

	if !h.registry.Unsubscribe(client.ID(), sym) {
		h.sendError(client, req.ID, "Not tracking: "+sym)
		return
	}

	h.persistWatchlist(client)
	h.sendAck(client, req.ID, "Stopped tracking "+sym)
}

func (h *Hub) handleUntrackAll(client ClientInterface, req protocol.WSRequest) {
	n := h.registry.UnsubscribeAll(client.ID())
	h.persistWatchlist(client)
	h.sendAck(client, req.ID, fmt.Sprintf("Stopped tracking %d symbols", n))
}

func (h *Hub) handleAddAlert(client ClientInterface, req protocol.WSRequest) {
	a, err := models.NewAlert(req.Payload.Symbol, req.Payload.TargetPrice)
	if err != nil {
		h.sendError(client, req.ID, err.Error())
		return
	}

	client.AlertSet().Add(a)
	h.persistAlerts(client)
	h.sendAckData(client, req.ID, fmt.Sprintf("Alert set for %s at %.2f", a.Symbol, a.TargetPrice), a)
}

func (h *Hub) handleRemoveAlert(client ClientInterface, req protocol.WSRequest) {
	a, err := models.NewAlert(req.Payload.Symbol, req.Payload.TargetPrice)
	if err != nil {
		h.sendError(client, req.ID, err.Error())
		return
	}

	if !client.AlertSet().Remove(a) {
		h.sendError(client, req.ID, fmt.Sprintf("No alert for %s at %.2f", a.Symbol, a.TargetPrice))
		return
	}
	h.persistAlerts(client)
	h.sendAck(client, req.ID, fmt.Sprintf("Alert removed for %s at %.2f", a.Symbol, a.TargetPrice))
}

func (h *Hub) persistWatchlist(client ClientInterface) {
	if client.Owner() == "" || h.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.store.SaveWatchlist(ctx, client.Owner(), h.registry.Symbols(client.ID())); err != nil {
		h.logger.Error("Failed to save watchlist", zap.String("owner", client.Owner()), zap.Error(err))
	}
}

func (h *Hub) persistAlerts(client ClientInterface) {
	if client.Owner() == "" || h.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.store.SaveAlerts(ctx, client.Owner(), client.AlertSet().Snapshot()); err != nil {
		h.logger.Error("Failed to save alerts", zap.String("owner", client.Owner()), zap.Error(err))
	}
}

func (h *Hub) sendAck(c ClientInterface, id, msg string) {
	c.SendJSON(protocol.WSResponse{Type: protocol.TypeAck, ID: id, Status: "success", Message: msg})
}

func (h *Hub) sendAckData(c ClientInterface, id, msg string, data interface{}) {
	c.SendJSON(protocol.WSResponse{Type: protocol.TypeAck, ID: id, Status: "success", Message: msg, Data: data})
}

func (h *Hub) sendError(c ClientInterface, id, msg string) {
	c.SendJSON(protocol.WSResponse{Type: protocol.TypeError, ID: id, Status: "error", Message: msg})
}
