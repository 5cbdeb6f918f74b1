package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Conns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_ws_conns",
		Help: "Active websocket connections",
	})
	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_active_streams",
		Help: "Polling streams currently owned by the registry",
	})
	SubOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_sub_ops_total",
		Help: "Total subscription operations",
	}, []string{"op"}) // track/untrack/release
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_ticks_total",
		Help: "Poll ticks by outcome",
	}, []string{"outcome"}) // ok/error
	AlertsTriggeredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_alerts_triggered_total",
		Help: "Alert matches emitted to clients",
	})
	DroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_dropped_total",
		Help: "Total dropped outbound messages",
	}, []string{"why"})
)
