package sep

import (
	"context"
	"time"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/logs"

	"github.com/ktrader-tech/broker-facade/internal/schema"
)

// onParentEvent is the single handler subscribed to every event type on
// the parent's bus. Events for orders/trades this overlay does not own
// are ignored; everything else (ticks, bars, connection, trading day,
// log, custom) is republished on the overlay's own bus so a consumer
// only ever needs to attach to one bus per account layer.
func (o *Overlay) onParentEvent(event schema.BrokerEvent) {
	switch event.Type {
	case schema.EventOrderStatus:
		o.onOrderStatus(event)
	case schema.EventTradeReport:
		o.onTradeReport(event)
	case schema.EventCancelFailed:
		o.onCancelFailed(event)
	case schema.EventNewTradingDay:
		if data, ok := event.Data.(schema.NewTradingDayData); ok {
			o.maybeRollover(o.taskCtx, data.TradingDay)
		}
		o.rebroadcast(event)
	case schema.EventTick:
		o.onTick(event)
	default:
		o.rebroadcast(event)
	}
}

func (o *Overlay) rebroadcast(event schema.BrokerEvent) {
	event.SourceID = o.sourceID
	o.bus.Post(event)
}

func (o *Overlay) onOrderStatus(event schema.BrokerEvent) {
	order, ok := event.Data.(schema.Order)
	if !ok {
		return
	}

	o.mu.Lock()
	local, owned := o.todayOrders[order.OrderID]
	if !owned {
		o.mu.Unlock()
		return
	}
	prevStatus := local.Status
	updated := order
	updated.AccountID = o.account
	o.todayOrders[order.OrderID] = &updated

	if updated.Status.IsTerminal() && !prevStatus.IsTerminal() {
		o.releaseResidualFreezeLocked(updated)
	}
	o.mu.Unlock()

	o.persistOrder(o.taskCtx, updated)
	o.scheduleAssetsRefresh()
	o.rebroadcast(schema.BrokerEvent{Type: schema.EventOrderStatus, Data: updated})
}

// releaseResidualFreezeLocked releases whatever portion of an order's
// original close-side freeze was never converted into a fill, once the
// order reaches a terminal status. OPEN-side frozen cash is released
// symmetrically via updateAssets on the next asset refresh, since it is
// tracked in aggregate rather than per order. Must be called with o.mu
// held.
func (o *Overlay) releaseResidualFreezeLocked(order schema.Order) {
	if order.Offset == schema.OffsetOpen {
		return
	}
	remaining := order.RemainingVolume()
	if remaining <= 0 {
		return
	}
	bookDirection := schema.PositionBookDirection(order.Direction, order.Offset)
	pos := o.positionLocked(order.Code, bookDirection)
	o.unfreezePositionLocked(pos, order.Offset, remaining)
}

func (o *Overlay) onTradeReport(event schema.BrokerEvent) {
	trade, ok := event.Data.(schema.Trade)
	if !ok {
		return
	}

	o.mu.Lock()
	order, owned := o.todayOrders[trade.OrderID]
	if !owned {
		o.mu.Unlock()
		return
	}
	// schema.Trade carries no account id to rewrite; ownership is
	// established purely by the order id already recorded locally.
	o.todayTrades[trade.TradeID] = &trade
	o.applyTradeLocked(*order, trade)
	o.mu.Unlock()

	o.persistTrade(o.taskCtx, trade)
	o.scheduleAssetsRefresh()
	o.rebroadcast(schema.BrokerEvent{Type: schema.EventTradeReport, Data: trade})
}

func (o *Overlay) onTick(event schema.BrokerEvent) {
	tick, ok := event.Data.(schema.Tick)
	if !ok {
		o.rebroadcast(event)
		return
	}

	o.mu.Lock()
	_, tracked := o.positions[positionKey{tick.Code, schema.DirectionLong}]
	if !tracked {
		_, tracked = o.positions[positionKey{tick.Code, schema.DirectionShort}]
	}
	if tracked || o.tickSubscriptions[tick.Code] {
		o.lastTicks[tick.Code] = tick
		o.lastTickUpdateTime[tick.Code] = tick.Time
	}
	o.mu.Unlock()

	o.barAgg.UpdateTick(tick)
	o.rebroadcast(event)

	if tracked {
		o.scheduleAssetsRefresh()
	}
}

func (o *Overlay) onCancelFailed(event schema.BrokerEvent) {
	data, ok := event.Data.(schema.CancelFailedData)
	if !ok {
		o.rebroadcast(event)
		return
	}
	o.mu.Lock()
	_, owned := o.todayOrders[data.Order.OrderID]
	o.mu.Unlock()
	if !owned {
		return
	}
	o.rebroadcast(event)
}

func (o *Overlay) persistOrder(ctx context.Context, order schema.Order) {
	o.spawn(func(ctx context.Context) {
		if err := o.dm.SaveOrder(ctx, order); err != nil {
			logs.Errorf("sep: persist order account=%s order=%s err=%+v", o.account, order.OrderID, err)
		}
	})
}

func (o *Overlay) persistTrade(ctx context.Context, trade schema.Trade) {
	o.spawn(func(ctx context.Context) {
		if err := o.dm.SaveTrade(ctx, trade); err != nil {
			logs.Errorf("sep: persist trade account=%s trade=%s err=%+v", o.account, trade.TradeID, err)
		}
	})
}

// maybeRollover advances the overlay to newDay if it differs from the
// currently tracked trading day: today-scoped position and asset counters
// reset, the day is persisted, and a local NEW_TRADING_DAY event fires.
func (o *Overlay) maybeRollover(ctx context.Context, newDay string) {
	o.mu.Lock()
	if newDay == "" || newDay == o.tradingDay {
		o.mu.Unlock()
		return
	}
	o.tradingDay = newDay

	for _, p := range o.positions {
		p.PreVolume = p.Volume
		p.TodayVolume = 0
		p.TodayOpenVolume = 0
		p.TodayCloseVolume = 0
		p.FrozenVolume = 0
		p.FrozenTodayVolume = 0
		p.FrozenYesterdayVolume = 0
		p.TodayCommission = decimal.Zero
	}
	for _, details := range o.positionDetails {
		for _, lot := range details.Lots() {
			lot.TodayVolume = 0
		}
	}

	o.assets.TradingDay = newDay
	o.assets.FrozenByOrder = decimal.Zero
	o.assets.TodayCommission = decimal.Zero
	o.assets.Recompute()

	assetsSnapshot := o.assets
	positionsSnapshot := make([]schema.Position, 0, len(o.positions))
	for _, p := range o.positions {
		positionsSnapshot = append(positionsSnapshot, *p)
	}
	o.todayOrders = make(map[string]*schema.Order)
	o.todayTrades = make(map[string]*schema.Trade)
	o.mu.Unlock()

	o.spawn(func(ctx context.Context) {
		if err := o.dm.SaveTradingDay(ctx, o.account, newDay); err != nil {
			logs.Errorf("sep: persist trading day account=%s err=%+v", o.account, err)
		}
		if err := o.dm.SaveAssets(ctx, assetsSnapshot); err != nil {
			logs.Errorf("sep: persist rollover assets account=%s err=%+v", o.account, err)
		}
		for _, p := range positionsSnapshot {
			if err := o.dm.SavePosition(ctx, p); err != nil {
				logs.Errorf("sep: persist rollover position account=%s code=%s err=%+v", o.account, p.Code, err)
			}
		}
	})

	o.bus.Post(schema.BrokerEvent{
		Type:     schema.EventNewTradingDay,
		SourceID: o.sourceID,
		Data:     schema.NewTradingDayData{TradingDay: newDay},
	})
}

// scheduleAssetsRefresh debounces asset recomputation: bursts of fills or
// tick-driven mark-to-market within the debounce window collapse into a
// single QueryAssets-worthy recompute, mirroring the second-bar
// generator's stale-timer guard but keyed on a captured timestamp instead
// of a generation counter.
func (o *Overlay) scheduleAssetsRefresh() {
	const debounce = 55 * time.Millisecond

	o.mu.Lock()
	scheduledAt := time.Now()
	o.assetsRefreshAt = scheduledAt
	o.mu.Unlock()

	time.AfterFunc(debounce, func() {
		o.mu.Lock()
		if !o.connected || !o.assetsRefreshAt.Equal(scheduledAt) {
			// a later burst already superseded this timer, or the
			// overlay went down before it fired.
			o.mu.Unlock()
			return
		}
		o.recomputeAssetsLocked()
		snapshot := o.assets
		metrics := o.metrics
		o.mu.Unlock()

		metrics.ObserveAssetsRefresh(time.Since(scheduledAt))

		o.spawn(func(ctx context.Context) {
			if err := o.dm.SaveAssets(ctx, snapshot); err != nil {
				logs.Errorf("sep: persist assets account=%s err=%+v", o.account, err)
			}
		})
	})
}
