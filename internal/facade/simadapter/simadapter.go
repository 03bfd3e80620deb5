// Package simadapter provides an in-memory facade.BrokerAPI good enough
// to drive the Tick Order Matcher and SEP Overlay without a real exchange
// connection: a security catalog, a last-tick cache, a fixed clock for
// trading-day/connection bookkeeping, and Calculate* hooks derived from
// each security's Multiplier.
package simadapter

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/ktrader-tech/broker-facade/internal/bus"
	"github.com/ktrader-tech/broker-facade/internal/facade"
	"github.com/ktrader-tech/broker-facade/internal/match"
	"github.com/ktrader-tech/broker-facade/internal/obs"
	"github.com/ktrader-tech/broker-facade/internal/schema"
	"github.com/ktrader-tech/broker-facade/internal/xerror"
)

// feeRate is the flat commission rate applied to trade turnover; margin on
// OPEN is modeled as full notional (no leverage). Exact fee/margin
// formulas are left to the concrete adapter, so these constants are this
// simulator's own policy.
const feeRate = "0.0003"

type positionKey struct {
	code      string
	direction schema.Direction
}

// SimAdapter is a self-contained, in-memory facade.BrokerAPI.
type SimAdapter struct {
	name    string
	account string
	sourceID string

	bus     *bus.Bus
	matcher *match.Matcher

	mu         sync.Mutex
	securities map[string]schema.Security
	tickSubs   map[string]bool
	lastTicks  map[string]schema.Tick
	tradingDay string
	connected  bool

	orders    map[string]schema.Order
	trades    map[string]schema.Trade
	positions map[positionKey]*schema.Position
}

var _ facade.BrokerAPI = (*SimAdapter)(nil)

// NewSimAdapter creates a simulator seeded with the given securities.
func NewSimAdapter(name, account string, securities ...schema.Security) *SimAdapter {
	a := &SimAdapter{
		name:       name,
		account:    account,
		sourceID:   account,
		bus:        bus.New(),
		securities: make(map[string]schema.Security, len(securities)),
		tickSubs:   make(map[string]bool),
		lastTicks:  make(map[string]schema.Tick),
		orders:     make(map[string]schema.Order),
		trades:     make(map[string]schema.Trade),
		positions:  make(map[positionKey]*schema.Position),
	}
	for _, s := range securities {
		a.securities[s.Code] = s
	}
	a.matcher = match.NewMatcher(account, a.sourceID, a, a.bus)
	a.bus.Subscribe([]schema.EventType{schema.EventOrderStatus, schema.EventTradeReport}, "simadapter-self", a.onOwnEvent)
	return a
}

// Bus exposes the adapter's own event bus for subscribers (e.g. a SEP
// Overlay) to attach to.
func (a *SimAdapter) Bus() *bus.Bus { return a.bus }

// SetMetrics attaches the counters the adapter's bus and matcher report
// into. Nil disables reporting.
func (a *SimAdapter) SetMetrics(metrics *obs.Metrics) {
	a.bus.SetMetrics(metrics)
	a.matcher.SetMetrics(metrics)
}

func (a *SimAdapter) Name() string    { return a.name }
func (a *SimAdapter) Account() string { return a.account }

// Subscribe and RemoveSubscribersByTag satisfy facade.EventSource,
// delegating straight to the adapter's own bus.
func (a *SimAdapter) Subscribe(types []schema.EventType, tag string, handler func(schema.BrokerEvent)) {
	a.bus.Subscribe(types, tag, handler)
}

func (a *SimAdapter) RemoveSubscribersByTag(tag string) {
	a.bus.RemoveSubscribersByTag(tag)
}

// PushTick feeds market data into the simulator: it becomes the cached
// last tick for its code, is forwarded to the matcher, and is broadcast
// on the bus if the code is currently subscribed.
func (a *SimAdapter) PushTick(tick schema.Tick) {
	a.mu.Lock()
	a.lastTicks[tick.Code] = tick
	subscribed := a.tickSubs[tick.Code]
	a.mu.Unlock()

	a.matcher.UpdateTick(tick)
	if subscribed {
		a.bus.Post(schema.BrokerEvent{Type: schema.EventTick, SourceID: a.sourceID, Data: tick})
	}
}

func (a *SimAdapter) onOwnEvent(event schema.BrokerEvent) {
	switch event.Type {
	case schema.EventOrderStatus:
		order, ok := event.Data.(schema.Order)
		if !ok {
			return
		}
		a.mu.Lock()
		a.orders[order.OrderID] = order
		a.mu.Unlock()
	case schema.EventTradeReport:
		trade, ok := event.Data.(schema.Trade)
		if !ok {
			return
		}
		a.mu.Lock()
		a.trades[trade.TradeID] = trade
		a.applyTradeLocked(trade)
		a.mu.Unlock()
	}
}

// applyTradeLocked keeps a coarse aggregate Position per (code,
// direction) so QueryPosition[s]/CalculatePosition behave realistically in
// tests and demos. Callers must hold a.mu. Lot-level accounting (the
// sorted PositionDetail container) is the SEP Overlay's responsibility,
// not this adapter's.
func (a *SimAdapter) applyTradeLocked(trade schema.Trade) {
	mult := a.multiplierLocked(trade.Code)
	bookDir := schema.PositionBookDirection(trade.Direction, trade.Offset)
	key := positionKey{trade.Code, bookDir}
	pos := a.positions[key]
	if pos == nil {
		pos = &schema.Position{AccountID: a.account, Code: trade.Code, Direction: bookDir}
		a.positions[key] = pos
	}
	if trade.Offset == schema.OffsetOpen {
		pos.Volume += trade.Volume
		pos.TodayVolume += trade.Volume
		pos.TodayOpenVolume += trade.Volume
		pos.OpenCost = pos.OpenCost.Add(trade.Price.Mul(decimal.NewFromInt(trade.Volume)).Mul(mult))
		pos.TodayCommission = pos.TodayCommission.Add(trade.Commission)
		pos.LastPrice = trade.Price
		return
	}
	avg := pos.AvgOpenPrice(mult)
	closeVolume := trade.Volume
	pos.OpenCost = pos.OpenCost.Sub(avg.Mul(decimal.NewFromInt(closeVolume)).Mul(mult))
	if pos.OpenCost.LessThan(decimal.Zero) {
		pos.OpenCost = decimal.Zero
	}
	pos.Volume -= closeVolume
	if pos.Volume < 0 {
		pos.Volume = 0
	}
	todayPortion := closeVolume
	if todayPortion > pos.TodayVolume {
		todayPortion = pos.TodayVolume
	}
	pos.TodayVolume -= todayPortion
	pos.TodayCloseVolume += closeVolume
	pos.TodayCommission = pos.TodayCommission.Add(trade.Commission)
	pos.LastPrice = trade.Price
}

func (a *SimAdapter) multiplierLocked(code string) decimal.Decimal {
	if sec, ok := a.securities[code]; ok && !sec.Multiplier.IsZero() {
		return sec.Multiplier
	}
	return decimal.NewFromInt(1)
}

func (a *SimAdapter) Connect(_ context.Context, _ map[string]string) error {
	a.mu.Lock()
	a.connected = true
	if a.tradingDay == "" {
		a.tradingDay = time.Now().Format("20060102")
	}
	day := a.tradingDay
	a.mu.Unlock()

	a.bus.Post(schema.BrokerEvent{Type: schema.EventConnection, SourceID: a.sourceID, Data: schema.ConnectionData{State: schema.ConnectionTDLoggedIn}})
	a.bus.Post(schema.BrokerEvent{Type: schema.EventNewTradingDay, SourceID: a.sourceID, Data: schema.NewTradingDayData{TradingDay: day}})
	logs.Infof("simadapter: connected account=%s tradingDay=%s", a.account, day)
	return nil
}

func (a *SimAdapter) Close(_ context.Context) error {
	a.mu.Lock()
	a.connected = false
	a.mu.Unlock()
	a.bus.Post(schema.BrokerEvent{Type: schema.EventConnection, SourceID: a.sourceID, Data: schema.ConnectionData{State: schema.ConnectionTDLoggedOut}})
	return nil
}

func (a *SimAdapter) TradingDay(_ context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tradingDay, nil
}

// Rollover advances the fixed clock's trading day, mirroring what a real
// adapter's overnight batch would do, and posts NEW_TRADING_DAY.
func (a *SimAdapter) Rollover(newDay string) {
	a.mu.Lock()
	a.tradingDay = newDay
	a.matcher.Reset()
	for _, pos := range a.positions {
		pos.PreVolume = pos.Volume
		pos.TodayVolume = 0
		pos.TodayOpenVolume = 0
		pos.TodayCloseVolume = 0
		pos.TodayCommission = decimal.Zero
	}
	a.mu.Unlock()
	a.bus.Post(schema.BrokerEvent{Type: schema.EventNewTradingDay, SourceID: a.sourceID, Data: schema.NewTradingDayData{TradingDay: newDay}})
}

func (a *SimAdapter) QueryLastTick(_ context.Context, code string, _ bool) (*schema.Tick, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.lastTicks[code]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (a *SimAdapter) QuerySecurity(_ context.Context, code string, _ bool) (*schema.Security, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.securities[code]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (a *SimAdapter) QueryAllSecurities(_ context.Context, _ bool) ([]schema.Security, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]schema.Security, 0, len(a.securities))
	for _, s := range a.securities {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (a *SimAdapter) QueryAssets(_ context.Context, _ bool) (schema.Assets, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	assets := schema.Assets{AccountID: a.account, TradingDay: a.tradingDay}
	for _, pos := range a.positions {
		mult := a.multiplierLocked(pos.Code)
		assets.PositionValue = assets.PositionValue.Add(pos.LastPrice.Mul(decimal.NewFromInt(pos.Volume)).Mul(mult))
	}
	return assets, nil
}

func (a *SimAdapter) QueryPositions(_ context.Context, code string, _ bool) ([]schema.Position, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []schema.Position
	for k, pos := range a.positions {
		if code != "" && k.code != code {
			continue
		}
		out = append(out, *pos)
	}
	return out, nil
}

func (a *SimAdapter) QueryPosition(_ context.Context, code string, direction schema.Direction, _ bool) (*schema.Position, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	pos, ok := a.positions[positionKey{code, direction}]
	if !ok {
		return nil, nil
	}
	clone := *pos
	return &clone, nil
}

func (a *SimAdapter) QueryPositionDetails(_ context.Context, _ string, _ bool) ([]schema.PositionDetail, error) {
	// This adapter keeps only aggregate positions; lot detail belongs to
	// whichever SEP Overlay is layered on top of it.
	return nil, nil
}

func (a *SimAdapter) QueryOrder(_ context.Context, orderID string, _ bool) (*schema.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, ok := a.orders[orderID]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (a *SimAdapter) QueryOrders(_ context.Context, code string, onlyUnfinished, _ bool) ([]schema.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []schema.Order
	for _, o := range a.orders {
		if code != "" && o.Code != code {
			continue
		}
		if onlyUnfinished && o.Status.IsTerminal() {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreateTime.Before(out[j].CreateTime) })
	return out, nil
}

func (a *SimAdapter) QueryTrade(_ context.Context, tradeID string, _ bool) (*schema.Trade, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.trades[tradeID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (a *SimAdapter) QueryTrades(_ context.Context, code, orderID string, _ bool) ([]schema.Trade, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []schema.Trade
	for _, t := range a.trades {
		if code != "" && t.Code != code {
			continue
		}
		if orderID != "" && t.OrderID != orderID {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (a *SimAdapter) SubscribeTick(_ context.Context, code string, _ map[string]string) error {
	a.mu.Lock()
	a.tickSubs[code] = true
	a.mu.Unlock()
	return nil
}

func (a *SimAdapter) UnsubscribeTick(_ context.Context, code string, _ map[string]string) error {
	a.mu.Lock()
	delete(a.tickSubs, code)
	a.mu.Unlock()
	return nil
}

func (a *SimAdapter) SubscribeTicks(_ context.Context, codes []string, _ map[string]string) error {
	a.mu.Lock()
	for _, c := range codes {
		a.tickSubs[c] = true
	}
	a.mu.Unlock()
	return nil
}

func (a *SimAdapter) SubscribeAllTicks(_ context.Context, _ map[string]string) error {
	a.mu.Lock()
	for code := range a.securities {
		a.tickSubs[code] = true
	}
	a.mu.Unlock()
	return nil
}

func (a *SimAdapter) UnsubscribeAllTicks(_ context.Context) error {
	a.mu.Lock()
	a.tickSubs = make(map[string]bool)
	a.mu.Unlock()
	return nil
}

func (a *SimAdapter) QueryTickSubscriptions(_ context.Context, _ bool) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.tickSubs))
	for c := range a.tickSubs {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

func (a *SimAdapter) InsertOrder(_ context.Context, code string, price decimal.Decimal, volume int64, direction schema.Direction, offset schema.Offset, orderType schema.OrderType, minVolume int64, extras map[string]string) (schema.Order, error) {
	order := a.matcher.InsertOrder(code, price, volume, direction, offset, orderType, minVolume, nil, extras)
	a.mu.Lock()
	a.orders[order.OrderID] = order
	a.mu.Unlock()
	return order, nil
}

func (a *SimAdapter) CancelOrder(_ context.Context, orderID string, _ map[string]string) error {
	return a.matcher.CancelOrder(orderID)
}

func (a *SimAdapter) CancelAllOrders(_ context.Context, _ map[string]string) error {
	a.matcher.CancelAllOrders()
	return nil
}

func (a *SimAdapter) PrepareFeeCalculation(_ context.Context, _ []string, _ map[string]string) error {
	// The simulator's fee schedule is a flat rate needing no prefetch.
	return nil
}

func (a *SimAdapter) CalculatePosition(_ context.Context, position *schema.Position, _ map[string]string) error {
	a.mu.Lock()
	mult := a.multiplierLocked(position.Code)
	last, hasTick := a.lastTicks[position.Code]
	a.mu.Unlock()

	if hasTick {
		position.LastPrice = last.LastPrice
	}
	position.Value = position.LastPrice.Mul(decimal.NewFromInt(position.Volume)).Mul(mult)

	avg := position.AvgOpenPrice(mult)
	sign := decimal.NewFromInt(1)
	if position.Direction == schema.DirectionShort {
		sign = decimal.NewFromInt(-1)
	}
	position.Pnl = sign.Mul(position.LastPrice.Sub(avg)).Mul(decimal.NewFromInt(position.Volume)).Mul(mult)
	return nil
}

func (a *SimAdapter) CalculateOrder(_ context.Context, order *schema.Order, _ map[string]string) error {
	a.mu.Lock()
	mult := a.multiplierLocked(order.Code)
	a.mu.Unlock()

	notional := order.Price.Mul(decimal.NewFromInt(order.Volume)).Mul(mult)
	order.FrozenCash = notional
	return nil
}

func (a *SimAdapter) CalculateTrade(_ context.Context, trade *schema.Trade, _ map[string]string) error {
	a.mu.Lock()
	mult := a.multiplierLocked(trade.Code)
	a.mu.Unlock()

	rate, err := decimal.NewFromString(feeRate)
	if err != nil {
		return errors.Wrap(err, "simadapter: parse fee rate")
	}
	trade.Turnover = trade.Price.Mul(decimal.NewFromInt(trade.Volume)).Mul(mult)
	trade.Commission = trade.Turnover.Mul(rate)
	return nil
}

func (a *SimAdapter) CustomRequest(_ context.Context, method string, _ map[string]string) (map[string]string, error) {
	return nil, errors.Wrapf(xerror.ErrUnsupportedCustomRequest, "method: %s", method)
}

func (a *SimAdapter) CustomSuspendRequest(_ context.Context, method string, _ map[string]string) (map[string]string, error) {
	return nil, errors.Wrapf(xerror.ErrUnsupportedCustomRequest, "method: %s", method)
}
