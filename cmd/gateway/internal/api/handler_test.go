package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-tracker/cmd/gateway/internal/api"
	"github.com/shubham-shewale/stock-tracker/cmd/gateway/internal/testutils"
	"github.com/shubham-shewale/stock-tracker/cmd/gateway/internal/upstream"
	"github.com/shubham-shewale/stock-tracker/pkg/models"
)

func newServer(t *testing.T) (*httptest.Server, *testutils.MockFetcher, *testutils.MockStateStore) {
	fetcher := testutils.NewMockFetcher()
	store := testutils.NewMockStateStore()
	mux := http.NewServeMux()
	api.NewHandler(fetcher, store, zap.NewNop()).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, fetcher, store
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestGetStock(t *testing.T) {
	srv, fetcher, _ := newServer(t)
	fetcher.SetQuote(models.Quote{Symbol: "AAPL", OpenPrice: 150, ClosePrice: 151})

	resp, err := http.Get(srv.URL + "/api/stocks/aapl")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var q models.Quote
	decode(t, resp, &q)
	assert.Equal(t, 151.0, q.ClosePrice)
}

func TestGetStock_UpstreamFailure(t *testing.T) {
	srv, _, _ := newServer(t)

	resp, err := http.Get(srv.URL + "/api/stocks/ZZZZ")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "Error fetching stock data", body["error"])
}

func TestGetStock_MissingAPIKey(t *testing.T) {
	mux := http.NewServeMux()
	api.NewHandler(upstream.NewClient("http://127.0.0.1:1", ""), testutils.NewMockStateStore(), zap.NewNop()).Register(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/stocks/AAPL")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "API key is missing", body["error"])
}

func TestGetStock_InvalidSymbol(t *testing.T) {
	srv, _, _ := newServer(t)

	resp, err := http.Get(srv.URL + "/api/stocks/a$b")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPortfolio_BuyAndValue(t *testing.T) {
	srv, fetcher, store := newServer(t)
	fetcher.SetQuote(models.Quote{Symbol: "TSLA", ClosePrice: 710.10})

	resp, err := http.Post(srv.URL+"/api/portfolio/alice", "application/json",
		strings.NewReader(`{"symbol":"tsla","quantity":3,"price":700.05}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Len(t, store.Portfolio["alice"], 1)

	store.AddHolding(context.Background(), "alice", models.Holding{Symbol: "ZZZZ", Quantity: 1, Price: 1})

	resp, err = http.Get(srv.URL + "/api/portfolio/alice")
	require.NoError(t, err)
	var positions []api.Position
	decode(t, resp, &positions)

	require.Len(t, positions, 2)
	assert.Equal(t, "TSLA", positions[0].Symbol)
	assert.Equal(t, 710.10, positions[0].CurrentPrice)
	assert.Equal(t, "30.15", positions[0].ProfitLoss)
	assert.NotEmpty(t, positions[1].Error)
}

func TestPortfolio_RejectsBadPurchase(t *testing.T) {
	srv, _, _ := newServer(t)

	resp, err := http.Post(srv.URL+"/api/portfolio/alice", "application/json",
		strings.NewReader(`{"symbol":"TSLA","quantity":0,"price":1}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWatchlist(t *testing.T) {
	srv, _, store := newServer(t)
	store.Watchlist["alice"] = []string{"AAPL"}

	resp, err := http.Get(srv.URL + "/api/watchlist/alice")
	require.NoError(t, err)
	var got []string
	decode(t, resp, &got)
	assert.Equal(t, []string{"AAPL"}, got)
}

func TestAlertHistory(t *testing.T) {
	srv, _, store := newServer(t)
	store.History["AAPL"] = []models.AlertEvent{{Symbol: "AAPL", SeqID: 2}, {Symbol: "AAPL", SeqID: 1}}

	resp, err := http.Get(srv.URL + "/api/alerts/aapl/history?limit=1")
	require.NoError(t, err)
	var got []models.AlertEvent
	decode(t, resp, &got)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].SeqID)
}

func TestProfitLoss(t *testing.T) {
	assert.Equal(t, "3.00", api.ProfitLoss(150, 151, 3))
	assert.Equal(t, "-0.30", api.ProfitLoss(0.3, 0.2, 3))
	assert.Equal(t, "0.00", api.ProfitLoss(10, 10, 100))
}
