// Package core defines the value types shared by the order book, the
// matching engine and the API boundary: orders, trades, asset pairs and
// the snapshot/settlement records derived from them.
package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "Buy"
	Sell Side = "Sell"
)

type OrderType string

const (
	Limit  OrderType = "Limit"
	Market OrderType = "Market"
)

type TimeInForce string

const (
	GTC TimeInForce = "GTC" // good till cancel
	IOC TimeInForce = "IOC" // immediate or cancel
	FOK TimeInForce = "FOK" // fill or kill
)

type OrderStatus string

const (
	StatusPending         OrderStatus = "Pending"
	StatusPartiallyFilled OrderStatus = "PartiallyFilled"
	StatusFilled          OrderStatus = "Filled"
	StatusCancelled       OrderStatus = "Cancelled"
	StatusExpired         OrderStatus = "Expired"
	StatusRejected        OrderStatus = "Rejected"
)

// AssetPair identifies one instrument. Value-equal and usable as a map key.
type AssetPair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

func (p AssetPair) String() string {
	return p.Base + "/" + p.Quote
}

// Order is a signed client order. Price is present iff meaningful:
// required for Limit orders, absent for Market orders. Decimal fields
// keep the exponent of the text they were parsed from, which the
// signing scheme depends on ("1.50" and "1.5" sign differently).
type Order struct {
	OrderID        string           `json:"order_id"`
	UserAddress    string           `json:"user_address"`
	AssetPair      AssetPair        `json:"asset_pair"`
	Side           Side             `json:"side"`
	Type           OrderType        `json:"order_type"`
	Price          *decimal.Decimal `json:"price,omitempty"`
	Quantity       decimal.Decimal  `json:"quantity"`
	FilledQuantity decimal.Decimal  `json:"filled_quantity"`
	TimeInForce    TimeInForce      `json:"time_in_force"`
	Timestamp      int64            `json:"timestamp"`
	Expiration     *int64           `json:"expiration,omitempty"`
	Signature      string           `json:"signature"`
	Status         OrderStatus      `json:"status"`
}

// Remaining returns quantity minus filled quantity.
func (o *Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// Trade records one execution between a buy and a sell order.
// Immutable once created.
type Trade struct {
	TradeID     string          `json:"trade_id"`
	BuyOrderID  string          `json:"buy_order_id"`
	SellOrderID string          `json:"sell_order_id"`
	Price       decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	BuyUser     string          `json:"buy_user"`
	SellUser    string          `json:"sell_user"`
	AssetPair   AssetPair       `json:"asset_pair"`
	Timestamp   int64           `json:"timestamp"`
}

// PriceLevel is a derived view: one resting price and the summed
// outstanding quantity of the orders queued there.
type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// OrderBookSnapshot holds the top levels of both sides: bids sorted
// high to low, asks sorted low to high.
type OrderBookSnapshot struct {
	AssetPair AssetPair    `json:"asset_pair"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp int64        `json:"timestamp"`
}

// SettlementInstruction describes the net asset movement of one trade,
// handed to the settlement contract. Amounts are in minor units.
type SettlementInstruction struct {
	TradeID     string `json:"trade_id"`
	BuyUser     string `json:"buy_user"`
	SellUser    string `json:"sell_user"`
	BaseAsset   string `json:"base_asset"`
	QuoteAsset  string `json:"quote_asset"`
	BaseAmount  int64  `json:"base_amount"`
	QuoteAmount int64  `json:"quote_amount"`
	FeeBase     int64  `json:"fee_base"`
	FeeQuote    int64  `json:"fee_quote"`
	Timestamp   int64  `json:"timestamp"`
}

// stroopScale converts asset amounts to the 10^7 minor-unit scale the
// settlement contract accounts in.
var stroopScale = decimal.New(1, 7)

// ToStroops converts a decimal asset amount to minor units, truncating
// toward zero.
func ToStroops(d decimal.Decimal) int64 {
	return d.Mul(stroopScale).IntPart()
}

// Validate checks the structural invariants an order must satisfy
// before it reaches the book. Price and quantity may carry at most 7
// decimal places: settlement accounts in stroops, so finer increments
// are unrepresentable there, and the bound keeps distinct prices on
// distinct book levels.
func (o *Order) Validate() error {
	if !o.Quantity.IsPositive() {
		return fmt.Errorf("quantity must be positive")
	}
	if !o.Quantity.Equal(o.Quantity.Truncate(7)) {
		return fmt.Errorf("quantity precision exceeds 7 decimal places")
	}
	if o.Price != nil {
		if !o.Price.IsPositive() {
			return fmt.Errorf("price must be positive")
		}
		if !o.Price.Equal(o.Price.Truncate(7)) {
			return fmt.Errorf("price precision exceeds 7 decimal places")
		}
	}
	if o.Type == Limit && o.Price == nil {
		return fmt.Errorf("limit order requires a price")
	}
	return nil
}
