package core

import "errors"

// Sentinel errors surfaced by the order book and the matching engine.
// The API layer maps these onto HTTP status codes with errors.Is.
var (
	// ErrUnsupportedAssetPair is returned when an order's pair does not
	// resolve to the instrument the engine is configured for.
	ErrUnsupportedAssetPair = errors.New("unsupported asset pair")

	// ErrInsufficientBalance is returned when the submitter's custodial
	// balance cannot cover the order's notional.
	ErrInsufficientBalance = errors.New("insufficient vault balance")

	// ErrUnauthorized is returned when a cancel request comes from
	// someone other than the order's owner.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrOrderNotFound is returned by lookups for an unknown order id.
	ErrOrderNotFound = errors.New("order not found")
)
