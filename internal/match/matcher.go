// Package match implements the Tick Order Matcher (C5): a per-account
// simulator that walks the visible order book on each tick to fill
// resting LIMIT/MARKET/FAK/FOK orders and publishes the resulting
// ORDER_STATUS/TRADE_REPORT/CANCEL_FAILED events.
package match

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/decimal"
	"github.com/yanun0323/logs"

	"github.com/ktrader-tech/broker-facade/internal/bus"
	"github.com/ktrader-tech/broker-facade/internal/obs"
	"github.com/ktrader-tech/broker-facade/internal/schema"
	"github.com/ktrader-tech/broker-facade/internal/xerror"
)

// Calculator is the trade/order fee-calculation side-effect hook the
// matcher invokes as trades settle. A facade.BrokerAPI satisfies it
// trivially; the matcher treats a nil Calculator as "no real adapter",
// skipping the hook entirely rather than special-casing callers.
type Calculator interface {
	CalculateTrade(ctx context.Context, trade *schema.Trade, extras map[string]string) error
	CalculateOrder(ctx context.Context, order *schema.Order, extras map[string]string) error
}

// Matcher is a stateful, per-account order book simulator.
type Matcher struct {
	accountID string
	sourceID  string
	calc      Calculator
	bus       *bus.Bus

	mu            sync.Mutex
	subscriptions map[string]bool
	lastTicks     map[string]schema.Tick
	todayOrders   map[string]*schema.Order
	openOrders    map[string]map[string]*schema.Order
	orderRef      int64
	metrics       *obs.Metrics
}

// SetMetrics attaches the counters InsertOrder and applyFill report into.
// Nil disables reporting.
func (m *Matcher) SetMetrics(metrics *obs.Metrics) {
	m.mu.Lock()
	m.metrics = metrics
	m.mu.Unlock()
}

// NewMatcher creates a matcher for accountID. calc may be nil. Events are
// posted to b tagged sourceID.
func NewMatcher(accountID, sourceID string, calc Calculator, b *bus.Bus) *Matcher {
	return &Matcher{
		accountID:     accountID,
		sourceID:      sourceID,
		calc:          calc,
		bus:           b,
		subscriptions: make(map[string]bool),
		lastTicks:     make(map[string]schema.Tick),
		todayOrders:   make(map[string]*schema.Order),
		openOrders:    make(map[string]map[string]*schema.Order),
	}
}

// UpdateTick refreshes the matcher's cached tick for its code, marks the
// code subscribed, and runs the matching pass for any resting orders.
func (m *Matcher) UpdateTick(tick schema.Tick) {
	m.mu.Lock()
	m.lastTicks[tick.Code] = tick
	m.subscriptions[tick.Code] = true
	m.mu.Unlock()

	m.matchOrder(tick.Code)
}

func (m *Matcher) nextOrderID() string {
	ref := atomic.AddInt64(&m.orderRef, 1)
	return fmt.Sprintf("%s_%d_%d", m.accountID, time.Now().UnixMilli(), ref)
}

// InsertOrder validates and, on acceptance, submits code/price/volume for
// matching. lastTick, when non-nil, seeds the matcher's tick cache for
// code (useful for the very first order on an as-yet-unsubscribed code).
// extras["closePositionPrice"], when present and parseable, is stamped
// onto the order so a SEP overlay downstream can use it for close-lot
// selection; the matcher itself never reads it.
func (m *Matcher) InsertOrder(code string, price decimal.Decimal, volume int64, direction schema.Direction, offset schema.Offset, orderType schema.OrderType, minVolume int64, lastTick *schema.Tick, extras map[string]string) schema.Order {
	now := time.Now()
	order := schema.Order{
		OrderID:    m.nextOrderID(),
		AccountID:  m.accountID,
		Code:       code,
		Price:      price,
		Volume:     volume,
		Direction:  direction,
		Offset:     offset,
		OrderType:  orderType,
		MinVolume:  minVolume,
		CreateTime: now,
		UpdateTime: now,
	}
	if raw, ok := extras["closePositionPrice"]; ok {
		if target, err := decimal.NewFromString(raw); err == nil {
			order.ClosePositionPrice = &target
		}
	}

	m.mu.Lock()
	if lastTick != nil {
		m.lastTicks[code] = *lastTick
	}
	tick, hasTick := m.lastTicks[code]
	m.mu.Unlock()

	switch {
	case !hasTick:
		order.Status = schema.OrderStatusError
		order.StatusMsg = xerror.ErrNoLastTick.Error()
	case tick.Status == schema.MarketStatusUnknown || tick.Status == schema.MarketStatusClosed:
		order.Status = schema.OrderStatusError
		order.StatusMsg = xerror.ErrNotTradeable.Error()
	case orderType == schema.OrderTypeStop || orderType == schema.OrderTypeCustom || orderType == schema.OrderTypeUnknown:
		order.Status = schema.OrderStatusError
		order.StatusMsg = xerror.ErrUnsupportedOrderType.Error()
	}

	m.mu.Lock()
	if order.Status == schema.OrderStatusError {
		m.todayOrders[order.OrderID] = &order
		m.mu.Unlock()
		m.metrics.IncOrderFailed()
		return order
	}
	order.Status = schema.OrderStatusAccepted
	order.StatusMsg = "unfilled"
	m.todayOrders[order.OrderID] = &order
	m.mu.Unlock()
	m.metrics.IncOrderSent()

	time.AfterFunc(time.Millisecond, func() {
		m.postOrderStatus(order.Clone())

		m.mu.Lock()
		if m.openOrders[code] == nil {
			m.openOrders[code] = make(map[string]*schema.Order)
		}
		m.openOrders[code][order.OrderID] = &order
		m.mu.Unlock()

		m.matchOrder(code)
	})

	return order
}

// matchOrder runs the matching pass for every open order on code if the
// cached tick's status admits matching.
func (m *Matcher) matchOrder(code string) {
	m.mu.Lock()
	tick, hasTick := m.lastTicks[code]
	if !hasTick || (tick.Status != schema.MarketStatusContinuousMatching && tick.Status != schema.MarketStatusAuctionMatched) {
		m.mu.Unlock()
		return
	}
	orders := make([]*schema.Order, 0, len(m.openOrders[code]))
	for _, o := range m.openOrders[code] {
		orders = append(orders, o)
	}
	m.mu.Unlock()

	for _, order := range orders {
		m.matchOne(order, tick)
	}
}

func (m *Matcher) matchOne(order *schema.Order, tick schema.Tick) {
	if order.OrderType == schema.OrderTypeFAK || order.OrderType == schema.OrderTypeFOK {
		limit := order.RemainingVolume()
		if order.OrderType == schema.OrderTypeFAK && order.MinVolume > 0 && order.MinVolume < limit {
			limit = order.MinVolume
		}
		if !canFillVolume(tick, order, limit) {
			m.cancelResting(order, "dry-run could not fill required volume")
			return
		}
	}

	fills := walkBook(tick, order, order.RemainingVolume())
	for _, f := range fills {
		m.applyFill(order, tick, f)
	}
	if !order.Status.IsTerminal() {
		if order.OrderType == schema.OrderTypeFAK || order.OrderType == schema.OrderTypeFOK {
			m.cancelResting(order, "unfilled portion of FAK/FOK order")
		}
	}
}

type fill struct {
	price  decimal.Decimal
	volume int64
}

// walkBook simulates matching order against tick's opposite book side,
// consuming up to restVolume. It never mutates order or tick.
func walkBook(tick schema.Tick, order *schema.Order, restVolume int64) []fill {
	if restVolume <= 0 {
		return nil
	}
	levels, unbounded := candidateLevels(tick, order)
	var fills []fill
	remaining := restVolume
	var lastPrice decimal.Decimal
	exhaustedAllLevels := true
	for _, lvl := range levels {
		if remaining <= 0 {
			break
		}
		if !unbounded && !priceAcceptable(order, lvl.Price) {
			exhaustedAllLevels = false
			break
		}
		take := lvl.Volume
		if take > remaining {
			take = remaining
		}
		if take <= 0 {
			continue
		}
		fills = append(fills, fill{price: lvl.Price, volume: take})
		lastPrice = lvl.Price
		remaining -= take
	}
	// Spillover only applies once every visible level has been walked
	// within the order's price bound (a thin book, or an effectively
	// unbounded MARKET order) — a LIMIT order stopped by its own price
	// limit leaves the remainder unfilled instead.
	if remaining > 0 && exhaustedAllLevels && len(levels) > 0 {
		if lastPrice.IsZero() {
			lastPrice = tick.LastPrice
		}
		fills = append(fills, fill{price: lastPrice, volume: remaining})
	}
	return fills
}

// candidateLevels returns the opposite book side an order walks, and
// whether the order is effectively unbounded (MARKET modeled as a LIMIT
// at +/-infinity, so every level's price is acceptable).
func candidateLevels(tick schema.Tick, order *schema.Order) ([]schema.PriceLevel, bool) {
	if order.Direction == schema.DirectionLong {
		return tick.Asks, order.OrderType == schema.OrderTypeMarket
	}
	return tick.Bids, order.OrderType == schema.OrderTypeMarket
}

func priceAcceptable(order *schema.Order, levelPrice decimal.Decimal) bool {
	if order.Direction == schema.DirectionLong {
		return !levelPrice.GreaterThan(order.Price)
	}
	return !levelPrice.LessThan(order.Price)
}

// canFillVolume dry-runs walkBook and reports whether it can fully
// consume limit.
func canFillVolume(tick schema.Tick, order *schema.Order, limit int64) bool {
	if limit <= 0 {
		return true
	}
	levels, unbounded := candidateLevels(tick, order)
	remaining := limit
	for _, lvl := range levels {
		if remaining <= 0 {
			break
		}
		if !unbounded && !priceAcceptable(order, lvl.Price) {
			break
		}
		take := lvl.Volume
		if take > remaining {
			take = remaining
		}
		remaining -= take
	}
	return remaining == 0
}

func (m *Matcher) applyFill(order *schema.Order, tick schema.Tick, f fill) {
	m.mu.Lock()

	turnover := f.price.Mul(decimal.NewFromInt(f.volume))
	trade := schema.Trade{
		TradeID:   uuid.NewString(),
		OrderID:   order.OrderID,
		Code:      order.Code,
		Price:     f.price,
		Volume:    f.volume,
		Turnover:  turnover,
		Direction: order.Direction,
		Offset:    order.Offset,
		Time:      time.Now(),
	}

	ctx := context.Background()
	if m.calc != nil {
		if err := m.calc.CalculateTrade(ctx, &trade, nil); err != nil {
			logs.Errorf("match: calculate trade failed order=%s err=%+v", order.OrderID, err)
		}
	}

	order.FilledVolume += trade.Volume
	order.Turnover = order.Turnover.Add(trade.Turnover)
	order.UpdateTime = trade.Time
	m.metrics.ObserveOrderFlow(trade.Time.Sub(order.CreateTime))
	if order.FilledVolume >= order.Volume {
		order.Status = schema.OrderStatusFilled
		order.StatusMsg = "fully filled"
	} else {
		order.Status = schema.OrderStatusPartiallyFilled
		order.StatusMsg = "partially filled"
	}

	if m.calc != nil {
		if err := m.calc.CalculateOrder(ctx, order, nil); err != nil {
			logs.Errorf("match: calculate order failed order=%s err=%+v", order.OrderID, err)
		}
	}

	if order.Status.IsTerminal() {
		m.finishOrderLocked(order)
	}
	tradeSnapshot, orderSnapshot := trade.Clone(), order.Clone()
	m.mu.Unlock()

	m.postTradeReport(tradeSnapshot)
	m.postOrderStatus(orderSnapshot)
}

func (m *Matcher) cancelResting(order *schema.Order, reason string) {
	m.mu.Lock()
	order.Status = schema.OrderStatusCanceled
	order.StatusMsg = "canceled: " + reason
	order.UpdateTime = time.Now()
	m.finishOrderLocked(order)
	m.mu.Unlock()
	m.postOrderStatus(order.Clone())
}

// CancelOrder cancels a resting order. If the order is unknown, err is
// non-nil (NOT_FOUND). If the order is in a terminal or otherwise
// non-cancelable state, a CANCEL_FAILED event is posted and state is left
// unchanged; no error is returned (per the STATE_CONFLICT taxonomy, this
// surfaces only as an event).
func (m *Matcher) CancelOrder(orderID string) error {
	m.mu.Lock()
	order, ok := m.todayOrders[orderID]
	if !ok {
		m.mu.Unlock()
		return xerror.ErrOrderNotFound
	}
	if !order.Status.IsCancelable() {
		snapshot := order.Clone()
		m.mu.Unlock()
		m.postCancelFailed(snapshot, xerror.ErrOrderNotCancelable.Error())
		return nil
	}
	order.Status = schema.OrderStatusCanceled
	order.StatusMsg = "canceled"
	order.UpdateTime = time.Now()
	m.finishOrderLocked(order)
	snapshot := order.Clone()
	m.mu.Unlock()

	m.postOrderStatus(snapshot)
	return nil
}

// CancelAllOrders cancels every currently-open order across all codes.
func (m *Matcher) CancelAllOrders() {
	m.mu.Lock()
	ids := make([]string, 0)
	for _, orders := range m.openOrders {
		for id := range orders {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	sort.Strings(ids)
	for _, id := range ids {
		_ = m.CancelOrder(id)
	}
}

// finishOrderLocked removes order from openOrders; if that code's open
// set becomes empty, its subscription and cached tick are dropped too.
// Callers must hold m.mu.
func (m *Matcher) finishOrderLocked(order *schema.Order) {
	if orders, ok := m.openOrders[order.Code]; ok {
		delete(orders, order.OrderID)
		if len(orders) == 0 {
			delete(m.openOrders, order.Code)
			delete(m.subscriptions, order.Code)
			delete(m.lastTicks, order.Code)
		}
	}
}

func (m *Matcher) finishOrder(order *schema.Order) {
	m.mu.Lock()
	m.finishOrderLocked(order)
	m.mu.Unlock()
}

// Reset clears all internal state; called on trading-day rollover.
func (m *Matcher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]bool)
	m.lastTicks = make(map[string]schema.Tick)
	m.todayOrders = make(map[string]*schema.Order)
	m.openOrders = make(map[string]map[string]*schema.Order)
	m.orderRef = 0
}

func (m *Matcher) postOrderStatus(order schema.Order) {
	if m.bus == nil {
		return
	}
	m.bus.Post(schema.BrokerEvent{Type: schema.EventOrderStatus, SourceID: m.sourceID, Data: order})
}

func (m *Matcher) postTradeReport(trade schema.Trade) {
	if m.bus == nil {
		return
	}
	m.bus.Post(schema.BrokerEvent{Type: schema.EventTradeReport, SourceID: m.sourceID, Data: trade})
}

func (m *Matcher) postCancelFailed(order schema.Order, reason string) {
	if m.bus == nil {
		return
	}
	order.StatusMsg = "cancel failed: " + reason
	m.bus.Post(schema.BrokerEvent{Type: schema.EventCancelFailed, SourceID: m.sourceID, Data: schema.CancelFailedData{Order: order}})
}
