package model

// WSMessageType represents the type of WebSocket message
type WSMessageType string

const (
	MessageTypeTradeUpdate        WSMessageType = "trade_update"
	MessageTypeBalanceUpdate      WSMessageType = "balance_update"
	MessageTypeSubscriptionUpdate WSMessageType = "subscription_update"
)

// WSMessage is the envelope for all WebSocket messages
type WSMessage struct {
	Type    WSMessageType `json:"type"`
	Payload interface{}   `json:"payload"`
}
