package api

// Request/response types for the REST endpoints and WebSocket
// messages.

import (
	"github.com/shopspring/decimal"

	"github.com/stellarvault/matching-engine/pkg/core"
)

// SubmitOrderRequest is the POST /api/v1/orders payload. OrderID and
// Timestamp are optional; the server assigns defaults. Price must be
// present for Limit orders and absent for Market orders.
type SubmitOrderRequest struct {
	OrderID     string           `json:"order_id,omitempty"`
	UserAddress string           `json:"user_address"`
	AssetPair   core.AssetPair   `json:"asset_pair"`
	Side        core.Side        `json:"side"`
	OrderType   core.OrderType   `json:"order_type"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Quantity    decimal.Decimal  `json:"quantity"`
	TimeInForce core.TimeInForce `json:"time_in_force"`
	Timestamp   int64            `json:"timestamp,omitempty"`
	Expiration  *int64           `json:"expiration,omitempty"`
	Signature   string           `json:"signature"`
}

type SubmitOrderResponse struct {
	OrderID string       `json:"order_id"`
	Status  string       `json:"status"`
	Trades  []core.Trade `json:"trades"`
}

type CancelOrderResponse struct {
	Status string `json:"status"`
}

// BalanceResponse reports a live vault balance read, bypassing the
// engine's shadow ledger.
type BalanceResponse struct {
	UserAddress string `json:"user_address"`
	Asset       string `json:"asset"`
	ContractID  string `json:"contract_id"`
	Balance     string `json:"balance"`
	BalanceRaw  int64  `json:"balance_raw"`
	Cached      bool   `json:"cached"`
}

type SettlementResponse struct {
	Status          string `json:"status"`
	TransactionHash string `json:"transaction_hash"`
	Message         string `json:"message"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// WSSubscribeRequest is the client -> server subscription message.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// WSMessage wraps every server -> client broadcast.
type WSMessage struct {
	Channel string      `json:"channel"`
	Data    interface{} `json:"data"`
}

// Broadcast channels.
const (
	ChannelTrades    = "trades"
	ChannelOrderbook = "orderbook"
)
