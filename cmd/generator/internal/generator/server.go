package generator

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Server answers the previous-close aggregate endpoint with generated bars.
type Server struct {
	gen    *StockGenerator
	apiKey string
	logger *zap.Logger
}

// NewServer requires callers to present apiKey when it is non-empty.
func NewServer(gen *StockGenerator, apiKey string, logger *zap.Logger) *Server {
	return &Server{gen: gen, apiKey: apiKey, logger: logger}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/aggs/ticker/{symbol}/prev", s.prevClose)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (s *Server) prevClose(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()

	if s.apiKey != "" && r.URL.Query().Get("apiKey") != s.apiKey {
		writeJSON(w, http.StatusUnauthorized, errorResponse{
			Status: "ERROR", RequestID: requestID, Error: "Unknown API Key",
		})
		return
	}

	symbol := strings.ToUpper(r.PathValue("symbol"))
	resp := AggregateResponse{
		Ticker:     symbol,
		QueryCount: 1,
		Adjusted:   true,
		Status:     "OK",
		RequestID:  requestID,
		Results:    []Bar{},
	}

	if bar, ok := s.gen.Next(symbol); ok {
		resp.Results = append(resp.Results, bar)
	}
	resp.ResultsCount = len(resp.Results)
	resp.Count = len(resp.Results)

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
