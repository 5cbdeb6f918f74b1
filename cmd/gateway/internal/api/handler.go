package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-tracker/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/stock-tracker/cmd/gateway/internal/stream"
	"github.com/shubham-shewale/stock-tracker/pkg/config"
	"github.com/shubham-shewale/stock-tracker/pkg/models"
)

const requestTimeout = 15 * time.Second

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Position is a holding valued at the latest close.
type Position struct {
	models.Holding
	CurrentPrice float64 `json:"currentPrice"`
	ProfitLoss   string  `json:"profitLoss"`
	Error        string  `json:"error,omitempty"`
}

// Handler serves the synchronous request/response endpoints.
type Handler struct {
	fetcher stream.Fetcher
	store   repository.StateStore
	logger  *zap.Logger
}

func NewHandler(fetcher stream.Fetcher, store repository.StateStore, logger *zap.Logger) *Handler {
	return &Handler{fetcher: fetcher, store: store, logger: logger}
}

// Register mounts the routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/stocks/{symbol}", h.getStock)
	mux.HandleFunc("GET /api/watchlist/{owner}", h.getWatchlist)
	mux.HandleFunc("GET /api/portfolio/{owner}", h.getPortfolio)
	mux.HandleFunc("POST /api/portfolio/{owner}", h.buy)
	mux.HandleFunc("GET /api/alerts/{symbol}/history", h.alertHistory)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

func (h *Handler) getStock(w http.ResponseWriter, r *http.Request) {
	sym, err := models.NormalizeSymbol(r.PathValue("symbol"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	q, err := h.fetcher.Fetch(ctx, sym)
	if err != nil {
		if errors.Is(err, config.ErrMissingAPIKey) {
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "API key is missing"})
			return
		}
		h.logger.Warn("Quote lookup failed", zap.String("symbol", sym), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Error fetching stock data", Details: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) getWatchlist(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.store.LoadWatchlist(r.Context(), r.PathValue("owner"))
	if err != nil {
		h.storeError(w, err)
		return
	}
	if symbols == nil {
		symbols = []string{}
	}
	writeJSON(w, http.StatusOK, symbols)
}

func (h *Handler) getPortfolio(w http.ResponseWriter, r *http.Request) {
	holdings, err := h.store.LoadPortfolio(r.Context(), r.PathValue("owner"))
	if err != nil {
		h.storeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	// One lookup per distinct symbol
	prices := make(map[string]models.Quote)
	failures := make(map[string]error)
	positions := make([]Position, 0, len(holdings))
	for _, hold := range holdings {
		if _, seen := prices[hold.Symbol]; !seen && failures[hold.Symbol] == nil {
			q, err := h.fetcher.Fetch(ctx, hold.Symbol)
			if err != nil {
				failures[hold.Symbol] = err
			} else {
				prices[hold.Symbol] = q
			}
		}

		pos := Position{Holding: hold}
		if q, ok := prices[hold.Symbol]; ok {
			pos.CurrentPrice = q.ClosePrice
			pos.ProfitLoss = ProfitLoss(hold.Price, q.ClosePrice, hold.Quantity)
		} else {
			pos.Error = failures[hold.Symbol].Error()
		}
		positions = append(positions, pos)
	}

	writeJSON(w, http.StatusOK, positions)
}

type buyRequest struct {
	Symbol   string  `json:"symbol"`
	Quantity int64   `json:"quantity"`
	Price    float64 `json:"price"`
}

func (h *Handler) buy(w http.ResponseWriter, r *http.Request) {
	var req buyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid JSON"})
		return
	}

	hold, err := models.NewHolding(req.Symbol, req.Quantity, req.Price)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	if err := h.store.AddHolding(r.Context(), r.PathValue("owner"), hold); err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, hold)
}

func (h *Handler) alertHistory(w http.ResponseWriter, r *http.Request) {
	sym, err := models.NormalizeSymbol(r.PathValue("symbol"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := h.store.AlertHistory(r.Context(), sym, limit)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, repository.ErrNoOwner) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	h.logger.Error("State store failure", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Storage unavailable"})
}

// ProfitLoss is (current - buy) * quantity, rounded to cents.
func ProfitLoss(buyPrice, currentPrice float64, quantity int64) string {
	diff := decimal.NewFromFloat(currentPrice).Sub(decimal.NewFromFloat(buyPrice))
	return diff.Mul(decimal.NewFromInt(quantity)).StringFixed(2)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
