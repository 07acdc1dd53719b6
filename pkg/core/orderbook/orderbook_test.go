package orderbook

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/stellarvault/matching-engine/pkg/core"
)

var testPair = core.AssetPair{Base: "XLM", Quote: "USDC"}

var orderSeq int

func newOrder(user string, side core.Side, price string, qty string, tif core.TimeInForce) *core.Order {
	orderSeq++
	o := &core.Order{
		OrderID:     fmt.Sprintf("ord-%d", orderSeq),
		UserAddress: user,
		AssetPair:   testPair,
		Side:        side,
		Type:        core.Limit,
		Quantity:    decimal.RequireFromString(qty),
		TimeInForce: tif,
		Timestamp:   int64(1700000000 + orderSeq),
		Status:      core.StatusPending,
	}
	if price != "" {
		p := decimal.RequireFromString(price)
		o.Price = &p
	} else {
		o.Type = core.Market
	}
	return o
}

func TestMatchFullFillAtSamePrice(t *testing.T) {
	b := New(testPair)

	buy := newOrder("alice", core.Buy, "1.5", "100", core.GTC)
	if trades := b.Match(buy); len(trades) != 0 {
		t.Fatalf("empty book produced %d trades", len(trades))
	}

	sell := newOrder("bob", core.Sell, "1.5", "100", core.GTC)
	trades := b.Match(sell)

	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(trades))
	}
	tr := trades[0]
	if !tr.Price.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("trade price = %s, want 1.5", tr.Price)
	}
	if !tr.Quantity.Equal(decimal.RequireFromString("100")) {
		t.Errorf("trade quantity = %s, want 100", tr.Quantity)
	}
	if tr.BuyUser != "alice" || tr.SellUser != "bob" {
		t.Errorf("trade parties = %s/%s, want alice/bob", tr.BuyUser, tr.SellUser)
	}
	if buy.Status != core.StatusFilled {
		t.Errorf("buy status = %s, want Filled", buy.Status)
	}
	if sell.Status != core.StatusFilled {
		t.Errorf("sell status = %s, want Filled", sell.Status)
	}

	snap := b.Snapshot()
	if len(snap.Bids) != 0 || len(snap.Asks) != 0 {
		t.Errorf("book not empty after full fill: %d bids, %d asks", len(snap.Bids), len(snap.Asks))
	}
}

func TestMatchPricePriorityAcrossLevels(t *testing.T) {
	b := New(testPair)
	b.Match(newOrder("s1", core.Sell, "2.0", "50", core.GTC))
	b.Match(newOrder("s2", core.Sell, "1.0", "50", core.GTC))

	trades := b.Match(newOrder("buyer", core.Buy, "2.5", "100", core.GTC))
	if len(trades) != 2 {
		t.Fatalf("trades = %d, want 2", len(trades))
	}
	if !trades[0].Price.Equal(decimal.RequireFromString("1.0")) {
		t.Errorf("first trade price = %s, want 1.0 (best ask first)", trades[0].Price)
	}
	if !trades[1].Price.Equal(decimal.RequireFromString("2.0")) {
		t.Errorf("second trade price = %s, want 2.0", trades[1].Price)
	}
}

func TestMatchPartialFillRests(t *testing.T) {
	b := New(testPair)
	buy := newOrder("alice", core.Buy, "2.0", "200", core.GTC)
	b.Match(buy)

	trades := b.Match(newOrder("bob", core.Sell, "2.0", "50", core.GTC))
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(trades))
	}
	if !trades[0].Quantity.Equal(decimal.RequireFromString("50")) {
		t.Errorf("trade quantity = %s, want 50", trades[0].Quantity)
	}
	if buy.Status != core.StatusPartiallyFilled {
		t.Errorf("buy status = %s, want PartiallyFilled", buy.Status)
	}
	if !buy.FilledQuantity.Equal(decimal.RequireFromString("50")) {
		t.Errorf("buy filled = %s, want 50", buy.FilledQuantity)
	}

	snap := b.Snapshot()
	if len(snap.Bids) != 1 {
		t.Fatalf("bids = %d, want 1 (remainder rests)", len(snap.Bids))
	}
	if !snap.Bids[0].Quantity.Equal(decimal.RequireFromString("150")) {
		t.Errorf("resting quantity = %s, want 150", snap.Bids[0].Quantity)
	}
}

func TestMatchIOCNeverRests(t *testing.T) {
	b := New(testPair)
	b.Match(newOrder("maker", core.Sell, "1.5", "50", core.GTC))

	buy := newOrder("taker", core.Buy, "1.5", "100", core.IOC)
	trades := b.Match(buy)

	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(trades))
	}
	if !trades[0].Quantity.Equal(decimal.RequireFromString("50")) {
		t.Errorf("trade quantity = %s, want 50", trades[0].Quantity)
	}
	if buy.Status != core.StatusPartiallyFilled {
		t.Errorf("buy status = %s, want PartiallyFilled", buy.Status)
	}
	snap := b.Snapshot()
	if len(snap.Bids) != 0 {
		t.Errorf("IOC remainder rested: %d bid levels", len(snap.Bids))
	}
	// The order stays queryable even though it never rested.
	if _, ok := b.Get(buy.OrderID); !ok {
		t.Error("IOC order missing from lookup")
	}
}

func TestMatchFOKBehavesLikeIOC(t *testing.T) {
	b := New(testPair)
	b.Match(newOrder("maker", core.Sell, "1.5", "50", core.GTC))

	buy := newOrder("taker", core.Buy, "1.5", "100", core.FOK)
	trades := b.Match(buy)

	// No all-or-nothing pre-check: the partial trade commits and the
	// remainder is discarded.
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(trades))
	}
	if len(b.Snapshot().Bids) != 0 {
		t.Error("FOK remainder rested")
	}
}

func TestMatchMarketOrderSweepsBook(t *testing.T) {
	b := New(testPair)
	b.Match(newOrder("s1", core.Sell, "1.0", "30", core.GTC))
	b.Match(newOrder("s2", core.Sell, "9.0", "30", core.GTC))

	market := newOrder("taker", core.Buy, "", "100", core.IOC)
	trades := b.Match(market)

	if len(trades) != 2 {
		t.Fatalf("trades = %d, want 2 (market crosses every level)", len(trades))
	}
	if market.Status != core.StatusPartiallyFilled {
		t.Errorf("market status = %s, want PartiallyFilled", market.Status)
	}
	if len(b.Snapshot().Bids) != 0 {
		t.Error("market order rested")
	}
}

func TestMatchTimePriorityWithinLevel(t *testing.T) {
	b := New(testPair)
	first := newOrder("first", core.Sell, "1.5", "50", core.GTC)
	second := newOrder("second", core.Sell, "1.5", "50", core.GTC)
	b.Match(first)
	b.Match(second)

	trades := b.Match(newOrder("taker", core.Buy, "1.5", "60", core.GTC))
	if len(trades) != 2 {
		t.Fatalf("trades = %d, want 2", len(trades))
	}
	if trades[0].SellOrderID != first.OrderID {
		t.Errorf("first fill against %s, want earliest order %s", trades[0].SellOrderID, first.OrderID)
	}
	if !trades[1].Quantity.Equal(decimal.RequireFromString("10")) {
		t.Errorf("second fill quantity = %s, want 10", trades[1].Quantity)
	}
	if second.Status != core.StatusPartiallyFilled {
		t.Errorf("second maker status = %s, want PartiallyFilled", second.Status)
	}
}

func TestMatchPriceImprovementToIncoming(t *testing.T) {
	b := New(testPair)
	b.Match(newOrder("maker", core.Sell, "1.0", "50", core.GTC))

	trades := b.Match(newOrder("taker", core.Buy, "2.0", "50", core.GTC))
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(trades))
	}
	// Execution at the resting price, not the incoming limit.
	if !trades[0].Price.Equal(decimal.RequireFromString("1.0")) {
		t.Errorf("trade price = %s, want resting 1.0", trades[0].Price)
	}
}

func TestMatchRespectsLimitBound(t *testing.T) {
	b := New(testPair)
	b.Match(newOrder("maker", core.Sell, "2.0", "50", core.GTC))

	buy := newOrder("taker", core.Buy, "1.5", "50", core.GTC)
	if trades := b.Match(buy); len(trades) != 0 {
		t.Fatalf("buy below best ask produced %d trades", len(trades))
	}

	sell := newOrder("maker2", core.Sell, "3.0", "50", core.GTC)
	if trades := b.Match(sell); len(trades) != 0 {
		t.Fatalf("sell above best bid produced %d trades", len(trades))
	}
}

func TestEquivalentPriceTextsShareALevel(t *testing.T) {
	b := New(testPair)
	b.Match(newOrder("m1", core.Sell, "1.5", "10", core.GTC))
	b.Match(newOrder("m2", core.Sell, "1.50", "10", core.GTC))

	snap := b.Snapshot()
	if len(snap.Asks) != 1 {
		t.Fatalf("ask levels = %d, want 1", len(snap.Asks))
	}
	if !snap.Asks[0].Quantity.Equal(decimal.RequireFromString("20")) {
		t.Errorf("level quantity = %s, want 20", snap.Asks[0].Quantity)
	}
}

func TestConservation(t *testing.T) {
	b := New(testPair)
	makers := []*core.Order{
		newOrder("m1", core.Sell, "1.0", "25", core.GTC),
		newOrder("m2", core.Sell, "1.2", "40", core.GTC),
		newOrder("m3", core.Sell, "1.2", "15", core.GTC),
	}
	for _, m := range makers {
		b.Match(m)
	}

	taker := newOrder("taker", core.Buy, "1.2", "70", core.GTC)
	trades := b.Match(taker)

	total := decimal.Zero
	for _, tr := range trades {
		total = total.Add(tr.Quantity)
	}
	if !total.Equal(taker.FilledQuantity) {
		t.Errorf("sum of trades = %s, taker filled = %s", total, taker.FilledQuantity)
	}
	for _, o := range append(makers, taker) {
		if o.FilledQuantity.Add(o.Remaining()).Cmp(o.Quantity) != 0 {
			t.Errorf("order %s: filled %s + remaining %s != quantity %s",
				o.OrderID, o.FilledQuantity, o.Remaining(), o.Quantity)
		}
		if o.FilledQuantity.GreaterThan(o.Quantity) {
			t.Errorf("order %s overfilled: %s > %s", o.OrderID, o.FilledQuantity, o.Quantity)
		}
	}
}

func TestCancel(t *testing.T) {
	b := New(testPair)
	o := newOrder("alice", core.Buy, "1.5", "100", core.GTC)
	b.Match(o)

	if err := b.Cancel("unknown", "alice"); err != nil {
		t.Errorf("cancel of unknown id = %v, want nil", err)
	}
	if err := b.Cancel(o.OrderID, "mallory"); err != core.ErrUnauthorized {
		t.Errorf("cancel by non-owner = %v, want ErrUnauthorized", err)
	}
	if len(b.Snapshot().Bids) != 1 {
		t.Fatal("failed cancel mutated the book")
	}

	if err := b.Cancel(o.OrderID, "alice"); err != nil {
		t.Fatalf("cancel = %v", err)
	}
	if o.Status != core.StatusCancelled {
		t.Errorf("status = %s, want Cancelled", o.Status)
	}
	if len(b.Snapshot().Bids) != 0 {
		t.Error("cancelled order still resident")
	}

	// Cancelling again is a no-op: the order is known but no longer
	// resident.
	if err := b.Cancel(o.OrderID, "alice"); err != nil {
		t.Errorf("second cancel = %v, want nil", err)
	}
}

func TestCancelFilledOrderIsNoop(t *testing.T) {
	b := New(testPair)
	sell := newOrder("bob", core.Sell, "1.5", "100", core.GTC)
	b.Match(sell)
	b.Match(newOrder("alice", core.Buy, "1.5", "100", core.GTC))

	if err := b.Cancel(sell.OrderID, "bob"); err != nil {
		t.Fatalf("cancel = %v", err)
	}
	if sell.Status != core.StatusFilled {
		t.Errorf("status = %s, want Filled (terminal state untouched)", sell.Status)
	}
}

func TestSnapshotIdempotentAndDepthLimited(t *testing.T) {
	b := New(testPair)
	for i := 1; i <= 25; i++ {
		b.Match(newOrder("m", core.Sell, fmt.Sprintf("%d.0", i), "10", core.GTC))
	}

	snap1 := b.Snapshot()
	snap2 := b.Snapshot()

	if len(snap1.Asks) != 20 {
		t.Errorf("ask depth = %d, want 20", len(snap1.Asks))
	}
	if len(snap1.Asks) != len(snap2.Asks) {
		t.Fatalf("snapshot depth changed between calls: %d vs %d", len(snap1.Asks), len(snap2.Asks))
	}
	for i := range snap1.Asks {
		if !snap1.Asks[i].Price.Equal(snap2.Asks[i].Price) ||
			!snap1.Asks[i].Quantity.Equal(snap2.Asks[i].Quantity) {
			t.Fatalf("snapshots differ at level %d with no intervening mutation", i)
		}
	}
	// Ascending asks, best first.
	for i := 1; i < len(snap1.Asks); i++ {
		if !snap1.Asks[i-1].Price.LessThan(snap1.Asks[i].Price) {
			t.Fatalf("asks not ascending at level %d", i)
		}
	}
}

func TestGetReturnsCurrentState(t *testing.T) {
	b := New(testPair)

	if _, ok := b.Get("nope"); ok {
		t.Error("lookup of unknown id succeeded")
	}

	sell := newOrder("bob", core.Sell, "1.5", "100", core.GTC)
	b.Match(sell)
	b.Match(newOrder("alice", core.Buy, "1.5", "40", core.GTC))

	got, ok := b.Get(sell.OrderID)
	if !ok {
		t.Fatal("resident order not found")
	}
	if got.Status != core.StatusPartiallyFilled {
		t.Errorf("status = %s, want PartiallyFilled", got.Status)
	}
	if !got.FilledQuantity.Equal(decimal.RequireFromString("40")) {
		t.Errorf("filled = %s, want 40", got.FilledQuantity)
	}
}
