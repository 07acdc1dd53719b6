// Package orderbook implements a price-time priority continuous double
// auction for a single asset pair. Resting orders live in FIFO queues
// keyed by price; matching always consumes the best level first and the
// oldest order within it.
package orderbook

import (
	"container/heap"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stellarvault/matching-engine/pkg/core"
)

// snapshotDepth is the number of aggregate levels reported per side.
const snapshotDepth = 20

// level is one resting price: the decimal price shared by every queued
// order plus the arrival-ordered queue itself.
type level struct {
	price  decimal.Decimal
	orders []*core.Order
}

// Book owns the resident orders of one asset pair. All mutating calls
// must be serialized by the caller (the engine holds an exclusive lock
// across admission and matching); the book's own lock makes snapshot
// and lookup reads safe against concurrent mutation.
type Book struct {
	mu   sync.RWMutex
	pair core.AssetPair

	bidHeap *tickHeap
	askHeap *tickHeap

	// price tick -> FIFO queue of resident orders
	bids map[int64]*level
	asks map[int64]*level

	// every order ever seen, resident or not; never evicted so
	// terminal orders stay queryable
	orders map[string]*core.Order
}

func New(pair core.AssetPair) *Book {
	return &Book{
		pair:    pair,
		bidHeap: newBidHeap(),
		askHeap: newAskHeap(),
		bids:    make(map[int64]*level),
		asks:    make(map[int64]*level),
		orders:  make(map[string]*core.Order),
	}
}

// tick keys a price level. Validated prices carry at most 7 decimal
// places, so the key is injective over admissible prices: two textual
// spellings of the same value ("1.50", "1.5") land on the same level
// and distinct values never collide.
func tick(p decimal.Decimal) int64 {
	return core.ToStroops(p)
}

// Match executes the incoming order against the opposite side and
// returns the resulting trades in execution order. The caller
// guarantees quantity > 0 and filled quantity 0 on entry. Any GTC
// remainder with a limit price rests at the tail of its level;
// Market, IOC and FOK remainders are discarded.
func (b *Book) Match(o *core.Order) []core.Trade {
	b.mu.Lock()
	defer b.mu.Unlock()

	var trades []core.Trade
	remaining := o.Remaining()

	if o.Side == core.Buy {
		for remaining.IsPositive() {
			if b.askHeap.Len() == 0 {
				break
			}
			t := b.askHeap.Peek()
			lvl := b.asks[t]
			if lvl == nil || len(lvl.orders) == 0 {
				delete(b.asks, t)
				heap.Pop(b.askHeap)
				continue
			}
			if o.Price != nil && o.Price.LessThan(lvl.price) {
				break // limit below best ask
			}
			maker := lvl.orders[0]
			avail := maker.Remaining()
			if !avail.IsPositive() {
				b.dequeueAsk(t, lvl)
				continue
			}
			qty := decimal.Min(remaining, avail)
			trades = append(trades, b.newTrade(o, maker, lvl.price, qty))
			remaining = remaining.Sub(qty)
			o.FilledQuantity = o.FilledQuantity.Add(qty)
			maker.FilledQuantity = maker.FilledQuantity.Add(qty)
			refreshStatus(maker)
			if !maker.Remaining().IsPositive() {
				b.dequeueAsk(t, lvl)
			}
		}
	} else {
		for remaining.IsPositive() {
			if b.bidHeap.Len() == 0 {
				break
			}
			t := b.bidHeap.Peek()
			lvl := b.bids[t]
			if lvl == nil || len(lvl.orders) == 0 {
				delete(b.bids, t)
				heap.Pop(b.bidHeap)
				continue
			}
			if o.Price != nil && o.Price.GreaterThan(lvl.price) {
				break // limit above best bid
			}
			maker := lvl.orders[0]
			avail := maker.Remaining()
			if !avail.IsPositive() {
				b.dequeueBid(t, lvl)
				continue
			}
			qty := decimal.Min(remaining, avail)
			trades = append(trades, b.newTrade(maker, o, lvl.price, qty))
			remaining = remaining.Sub(qty)
			o.FilledQuantity = o.FilledQuantity.Add(qty)
			maker.FilledQuantity = maker.FilledQuantity.Add(qty)
			refreshStatus(maker)
			if !maker.Remaining().IsPositive() {
				b.dequeueBid(t, lvl)
			}
		}
	}

	refreshStatus(o)
	b.orders[o.OrderID] = o

	if remaining.IsPositive() && o.TimeInForce == core.GTC && o.Price != nil {
		b.rest(o)
	}

	return trades
}

// newTrade fills a trade at the resting level's price — price
// improvement accrues to the incoming order.
func (b *Book) newTrade(buy, sell *core.Order, price, qty decimal.Decimal) core.Trade {
	return core.Trade{
		TradeID:     uuid.NewString(),
		BuyOrderID:  buy.OrderID,
		SellOrderID: sell.OrderID,
		Price:       price,
		Quantity:    qty,
		BuyUser:     buy.UserAddress,
		SellUser:    sell.UserAddress,
		AssetPair:   b.pair,
		Timestamp:   time.Now().Unix(),
	}
}

// dequeueAsk drops the head of an ask level, removing the level (and
// its heap tick, which is necessarily the top) once empty.
func (b *Book) dequeueAsk(t int64, lvl *level) {
	lvl.orders = lvl.orders[1:]
	if len(lvl.orders) == 0 {
		delete(b.asks, t)
		heap.Pop(b.askHeap)
	}
}

func (b *Book) dequeueBid(t int64, lvl *level) {
	lvl.orders = lvl.orders[1:]
	if len(lvl.orders) == 0 {
		delete(b.bids, t)
		heap.Pop(b.bidHeap)
	}
}

// rest appends the order to the tail of its price level, creating the
// level if absent.
func (b *Book) rest(o *core.Order) {
	t := tick(*o.Price)
	if o.Side == core.Buy {
		lvl, ok := b.bids[t]
		if !ok {
			lvl = &level{price: *o.Price}
			b.bids[t] = lvl
			heap.Push(b.bidHeap, t)
		}
		lvl.orders = append(lvl.orders, o)
	} else {
		lvl, ok := b.asks[t]
		if !ok {
			lvl = &level{price: *o.Price}
			b.asks[t] = lvl
			heap.Push(b.askHeap, t)
		}
		lvl.orders = append(lvl.orders, o)
	}
}

func refreshStatus(o *core.Order) {
	switch {
	case o.FilledQuantity.GreaterThanOrEqual(o.Quantity):
		o.Status = core.StatusFilled
	case o.FilledQuantity.IsPositive():
		o.Status = core.StatusPartiallyFilled
	}
}

// Cancel removes a resident order. Unknown ids and orders that are no
// longer resident are a no-op; a known order owned by someone else is
// ErrUnauthorized regardless of residency.
func (b *Book) Cancel(orderID, requester string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[orderID]
	if !ok {
		return nil
	}
	if o.UserAddress != requester {
		return core.ErrUnauthorized
	}
	if o.Price == nil {
		return nil // market orders never rest
	}

	t := tick(*o.Price)
	levels := b.bids
	if o.Side == core.Sell {
		levels = b.asks
	}
	lvl, ok := levels[t]
	if !ok {
		return nil
	}
	for i, resident := range lvl.orders {
		if resident.OrderID != orderID {
			continue
		}
		lvl.orders = append(lvl.orders[:i], lvl.orders[i+1:]...)
		o.Status = core.StatusCancelled
		if len(lvl.orders) == 0 {
			delete(levels, t)
			if o.Side == core.Buy {
				b.bidHeap.remove(t)
			} else {
				b.askHeap.remove(t)
			}
		}
		return nil
	}
	return nil
}

// Snapshot aggregates the top levels of both sides. Quantities are
// recomputed from the live queues on every call, never cached.
func (b *Book) Snapshot() core.OrderBookSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return core.OrderBookSnapshot{
		AssetPair: b.pair,
		Bids:      topLevels(b.bids, func(i, j int64) bool { return i > j }),
		Asks:      topLevels(b.asks, func(i, j int64) bool { return i < j }),
		Timestamp: time.Now().Unix(),
	}
}

func topLevels(side map[int64]*level, better func(i, j int64) bool) []core.PriceLevel {
	ticks := make([]int64, 0, len(side))
	for t := range side {
		ticks = append(ticks, t)
	}
	sort.Slice(ticks, func(i, j int) bool { return better(ticks[i], ticks[j]) })

	var out []core.PriceLevel
	for _, t := range ticks {
		lvl := side[t]
		total := decimal.Zero
		for _, o := range lvl.orders {
			total = total.Add(o.Remaining())
		}
		out = append(out, core.PriceLevel{Price: lvl.price, Quantity: total})
		if len(out) >= snapshotDepth {
			break
		}
	}
	return out
}

// Get returns the current state of a known order.
func (b *Book) Get(orderID string) (core.Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	o, ok := b.orders[orderID]
	if !ok {
		return core.Order{}, false
	}
	return *o, true
}

// Pair returns the instrument this book trades.
func (b *Book) Pair() core.AssetPair {
	return b.pair
}
