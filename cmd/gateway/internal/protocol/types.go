package protocol

import "github.com/shubham-shewale/stock-tracker/pkg/models"

// Inbound actions
const (
	ActionTrackStock   = "trackStock"
	ActionUntrackStock = "untrackStock"
	ActionUntrackAll   = "untrackAll"
	ActionAddAlert     = "addAlert"
	ActionRemoveAlert  = "removeAlert"
	ActionListAlerts   = "listAlerts"
)

// Outbound message types
const (
	TypeAck            = "ack"
	TypeError          = "error"
	TypeStockUpdate    = "stockUpdate"
	TypeStreamError    = "streamError"
	TypeAlertTriggered = "alertTriggered"
)

type WSRequest struct {
	Action  string         `json:"action"`
	Payload RequestPayload `json:"payload"`
	ID      string         `json:"id,omitempty"`
}

type RequestPayload struct {
	Symbol      string  `json:"symbol,omitempty"`
	TargetPrice float64 `json:"targetPrice,omitempty"`
}

type WSResponse struct {
	Type    string      `json:"type"`             // "ack", "error", "stockUpdate", ...
	ID      string      `json:"id,omitempty"`     // Matches request ID
	Status  string      `json:"status,omitempty"` // "success", "error"
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type StreamError struct {
	Symbol  string `json:"symbol"`
	Message string `json:"message"`
}

func StockUpdate(q models.Quote) WSResponse {
	return WSResponse{Type: TypeStockUpdate, Data: q}
}

func StreamFailure(symbol string, err error) WSResponse {
	return WSResponse{Type: TypeStreamError, Data: StreamError{Symbol: symbol, Message: err.Error()}}
}

func AlertTriggered(ev models.AlertEvent) WSResponse {
	return WSResponse{Type: TypeAlertTriggered, Data: ev}
}
