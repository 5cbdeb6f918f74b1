package server

import (
	"net/http"

	"github.com/gobwas/ws"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-tracker/cmd/gateway/internal/api"
	"github.com/shubham-shewale/stock-tracker/cmd/gateway/internal/gateway"
	"github.com/shubham-shewale/stock-tracker/cmd/gateway/internal/hub"
)

// NewMux mounts the websocket endpoint, the REST API and /metrics.
func NewMux(wsHub *hub.Hub, handler *api.Handler, logger *zap.Logger, sendBuffer int) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			logger.Debug("Upgrade failed", zap.Error(err))
			return
		}

		client := gateway.NewClient(conn, wsHub, logger, r.URL.Query().Get("owner"), sendBuffer)
		client.Start()
	})

	handler.Register(mux)
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}
