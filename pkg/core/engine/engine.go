// Package engine orchestrates admission for a single instrument: asset
// pair validation, custodial balance preconditions against a shadow
// ledger, delegation to the order book and post-trade bookkeeping.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stellarvault/matching-engine/pkg/core"
	"github.com/stellarvault/matching-engine/pkg/core/orderbook"
)

// SettlementClient is the engine's view of the settlement chain: a
// balance oracle, an asset resolver and a transaction submitter.
type SettlementClient interface {
	// ResolveContractAddress maps an asset identifier ("XLM",
	// "CODE:ISSUER", C-address, 64-hex) to its ledger contract id.
	ResolveContractAddress(asset string) (string, error)

	// ConfiguredPair returns the contract ids of the instrument the
	// settlement contract is deployed for.
	ConfiguredPair(ctx context.Context) (base, quote string, err error)

	// VaultBalance returns the user's custodial balance in minor
	// units. Transport and simulation failures surface as errors.
	VaultBalance(ctx context.Context, user, contractID string) (int64, error)

	// SubmitSettlement signs and submits one settlement instruction
	// and polls it to a terminal state, returning the tx hash.
	SubmitSettlement(ctx context.Context, instr core.SettlementInstruction) (string, error)
}

// Engine matches orders for one instrument. The mutex serializes every
// mutating entry point so that the balance check, the match and the
// ledger update of a submission form one critical section.
type Engine struct {
	mu     sync.Mutex
	client SettlementClient
	log    *zap.SugaredLogger

	book       *orderbook.Book
	baseAsset  string // contract id of the base asset
	quoteAsset string // contract id of the quote asset

	// shadow ledger: "user:contract" -> minor-unit balance, populated
	// lazily on first reference, thereafter only adjusted locally
	balances map[string]int64

	initialized bool
}

func New(client SettlementClient, log *zap.SugaredLogger) *Engine {
	return &Engine{
		client:   client,
		log:      log,
		balances: make(map[string]int64),
	}
}

// initLocked resolves the configured pair and constructs the book.
// Idempotent; failure leaves the engine uninitialized so the next
// entry point retries.
func (e *Engine) initLocked(ctx context.Context) error {
	if e.initialized {
		return nil
	}
	base, quote, err := e.client.ConfiguredPair(ctx)
	if err != nil {
		e.log.Errorw("engine initialization failed", "err", err)
		return fmt.Errorf("resolve configured pair: %w", err)
	}
	e.baseAsset = base
	e.quoteAsset = quote
	e.book = orderbook.New(core.AssetPair{Base: base, Quote: quote})
	e.initialized = true
	e.log.Infow("matching engine initialized", "base", base, "quote", quote)
	return nil
}

// SubmitOrder admits an order and matches it, returning the executed
// trades. Settlement submission is a separate, caller-driven step.
func (e *Engine) SubmitOrder(ctx context.Context, o *core.Order) ([]core.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.initLocked(ctx); err != nil {
		return nil, err
	}

	orderBase, err := e.client.ResolveContractAddress(o.AssetPair.Base)
	if err != nil {
		return nil, fmt.Errorf("resolve base asset %q: %w", o.AssetPair.Base, err)
	}
	orderQuote, err := e.client.ResolveContractAddress(o.AssetPair.Quote)
	if err != nil {
		return nil, fmt.Errorf("resolve quote asset %q: %w", o.AssetPair.Quote, err)
	}
	if orderBase != e.baseAsset || orderQuote != e.quoteAsset {
		// A reversed pair is recognizable here but carries no
		// reversal logic; it is rejected like any other mismatch.
		return nil, fmt.Errorf("%w: %s (contracts %s/%s, engine %s/%s)",
			core.ErrUnsupportedAssetPair, o.AssetPair, orderBase, orderQuote, e.baseAsset, e.quoteAsset)
	}

	if err := e.checkBalance(ctx, o); err != nil {
		return nil, err
	}

	trades := e.book.Match(o)
	for _, t := range trades {
		e.applyTrade(t)
	}
	return trades, nil
}

// checkBalance enforces the admission precondition: the submitter's
// custodial balance must cover the order's notional. A failed oracle
// lookup is logged and the check skipped — availability over
// strictness, an intentional tradeoff.
func (e *Engine) checkBalance(ctx context.Context, o *core.Order) error {
	var asset string
	var required decimal.Decimal
	if o.Side == core.Buy {
		asset = e.quoteAsset
		if o.Price != nil {
			required = o.Quantity.Mul(*o.Price)
		}
	} else {
		asset = e.baseAsset
		required = o.Quantity
	}

	key := balanceKey(o.UserAddress, asset)
	balance, ok := e.balances[key]
	if !ok {
		fetched, err := e.client.VaultBalance(ctx, o.UserAddress, asset)
		if err != nil {
			e.log.Warnw("balance check skipped",
				"user", o.UserAddress, "asset", asset, "err", err)
			return nil
		}
		e.balances[key] = fetched
		balance = fetched
	}

	req := core.ToStroops(required)
	if balance < req {
		return fmt.Errorf("%w: %d < %d", core.ErrInsufficientBalance, balance, req)
	}
	return nil
}

// applyTrade adjusts the shadow ledger for both parties. Only keys
// already cached are touched; a trade never creates a ledger entry.
func (e *Engine) applyTrade(t core.Trade) {
	baseAmt := core.ToStroops(t.Quantity)
	quoteAmt := core.ToStroops(t.Quantity.Mul(t.Price))

	e.adjust(t.BuyUser, e.baseAsset, baseAmt)
	e.adjust(t.BuyUser, e.quoteAsset, -quoteAmt)
	e.adjust(t.SellUser, e.baseAsset, -baseAmt)
	e.adjust(t.SellUser, e.quoteAsset, quoteAmt)
}

func (e *Engine) adjust(user, asset string, delta int64) {
	key := balanceKey(user, asset)
	if _, ok := e.balances[key]; ok {
		e.balances[key] += delta
	}
}

func balanceKey(user, contractID string) string {
	return user + ":" + contractID
}

// CancelOrder removes the caller's resident order from the book.
func (e *Engine) CancelOrder(ctx context.Context, orderID, userAddress string, _ core.AssetPair) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.initLocked(ctx); err != nil {
		return err
	}
	return e.book.Cancel(orderID, userAddress)
}

// GetOrder returns the current state of a known order.
func (e *Engine) GetOrder(ctx context.Context, orderID string, _ core.AssetPair) (core.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.initLocked(ctx); err != nil {
		return core.Order{}, err
	}
	o, ok := e.book.Get(orderID)
	if !ok {
		return core.Order{}, core.ErrOrderNotFound
	}
	return o, nil
}

// Snapshot returns the aggregated top of the book.
func (e *Engine) Snapshot(ctx context.Context, _ core.AssetPair) (core.OrderBookSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.initLocked(ctx); err != nil {
		return core.OrderBookSnapshot{}, err
	}
	return e.book.Snapshot(), nil
}

// ClearBalanceCache drops every shadow-ledger entry, forcing the next
// admission check per user to re-fetch from the chain.
func (e *Engine) ClearBalanceCache() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.balances = make(map[string]int64)
	e.log.Infow("balance cache cleared")
}
