package sep

import (
	"context"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/logs"

	"github.com/ktrader-tech/broker-facade/internal/schema"
)

// absDecimal returns the absolute value of d. The decimal library this
// codebase uses exposes no Abs method.
func absDecimal(d decimal.Decimal) decimal.Decimal {
	if d.LessThan(decimal.Zero) {
		return decimal.Zero.Sub(d)
	}
	return d
}

type lotClose struct {
	price        decimal.Decimal
	volume       int64
	todayPortion int64
}

// selectCloseLots consumes up to volume shares from details according to
// order's offset and closePositionPrice, mutating details in place
// (pruning any lot that reaches zero) and returning each partial or full
// lot consumed.
//
// With an explicit closePositionPrice the target is the price nearest a
// tie-break, ties resolved to the lower-priced lot. Without one, the
// resolution collapses to a directional sweep: a LONG order (closing a
// short position) sweeps from the lowest price up, a SHORT order (closing
// a long position) sweeps from the highest price down.
func (o *Overlay) selectCloseLots(details *schema.PositionDetails, order *schema.Order, volume int64) []lotClose {
	var fills []lotClose
	remaining := volume

	for remaining > 0 && details.Len() > 0 {
		idx := o.pickCloseLotIndex(details, order)
		if idx < 0 {
			break
		}
		lot := details.Lots()[idx]

		available := closeableFromLot(lot, order.Offset)
		if available <= 0 {
			// no eligible volume in this lot under the requested offset;
			// nothing else to try without violating offset semantics.
			break
		}

		take := remaining
		if take > available {
			take = available
		}

		var today int64
		switch order.Offset {
		case schema.OffsetCloseToday:
			today = take
		case schema.OffsetCloseYesterday:
			today = 0
		default:
			today = take - lot.YesterdayVolume()
			if today < 0 {
				today = 0
			}
		}
		lot.Volume -= take
		lot.TodayVolume -= today

		fills = append(fills, lotClose{price: lot.Price, volume: take, todayPortion: today})
		remaining -= take

		if lot.Volume <= 0 {
			details.RemoveAt(idx)
		}
	}

	return fills
}

// closeableFromLot returns the volume of a lot eligible under offset.
func closeableFromLot(lot *schema.PositionDetail, offset schema.Offset) int64 {
	switch offset {
	case schema.OffsetCloseToday:
		return lot.TodayVolume
	case schema.OffsetCloseYesterday:
		return lot.YesterdayVolume()
	default:
		return lot.Volume
	}
}

// pickCloseLotIndex picks among lots with closeable volume under order's
// offset — a lot exhausted under that offset (e.g. a yesterday-only lot
// against CLOSE_TODAY) is never a candidate, regardless of how close its
// price is to the target.
func (o *Overlay) pickCloseLotIndex(details *schema.PositionDetails, order *schema.Order) int {
	lots := details.Lots()

	best := -1
	var bestDist decimal.Decimal
	for i, lot := range lots {
		if closeableFromLot(lot, order.Offset) <= 0 {
			continue
		}

		if order.ClosePositionPrice == nil {
			if order.Direction == schema.DirectionLong {
				return i
			}
			best = i
			continue
		}

		dist := absDecimal(lot.Price.Sub(*order.ClosePositionPrice))
		if best < 0 || dist.LessThan(bestDist) {
			best = i
			bestDist = dist
		}
	}

	return best
}

// applyTradeLocked folds a fill into position/lot state and, for closes,
// into TotalClosePnl. Must be called with o.mu held.
func (o *Overlay) applyTradeLocked(order schema.Order, trade schema.Trade) {
	multiplier := o.multiplierLocked(order.Code)
	bookDirection := schema.PositionBookDirection(order.Direction, order.Offset)
	pos := o.positionLocked(order.Code, bookDirection)
	details := o.positionDetailsLocked(order.Code, bookDirection)

	if order.Offset == schema.OffsetOpen {
		details.Upsert(trade.Price, trade.Volume, trade.Volume, trade.Time)
		pos.Volume += trade.Volume
		pos.TodayVolume += trade.Volume
		pos.TodayOpenVolume += trade.Volume
		pos.OpenCost = pos.OpenCost.Add(trade.Price.Mul(decimal.NewFromInt(trade.Volume)).Mul(multiplier))
	} else {
		fills := o.selectCloseLots(details, &order, trade.Volume)

		sign := decimal.NewFromInt(1)
		if bookDirection == schema.DirectionShort {
			sign = decimal.NewFromInt(-1)
		}

		var closedVolume, closedToday int64
		for _, f := range fills {
			pnl := sign.
				Mul(decimal.NewFromInt(f.volume)).
				Mul(trade.Price.Sub(f.price)).
				Mul(multiplier)
			o.assets.TotalClosePnl = o.assets.TotalClosePnl.Add(pnl)
			pos.OpenCost = pos.OpenCost.Sub(f.price.Mul(decimal.NewFromInt(f.volume)).Mul(multiplier))
			closedVolume += f.volume
			closedToday += f.todayPortion
		}

		pos.Volume -= closedVolume
		pos.TodayVolume -= closedToday
		pos.TodayCloseVolume += closedVolume
		o.unfreezePositionLocked(pos, order.Offset, closedVolume)
	}

	pos.LastPrice = trade.Price
	pos.TodayCommission = pos.TodayCommission.Add(trade.Commission)

	o.assets.TodayCommission = o.assets.TodayCommission.Add(trade.Commission)
	o.assets.TotalCommission = o.assets.TotalCommission.Add(trade.Commission)
	o.assets.Recompute()

	o.persistPosition(*pos)
	for _, lot := range details.Lots() {
		o.persistPositionDetail(*lot)
	}
}

func (o *Overlay) persistPosition(p schema.Position) {
	o.spawn(func(ctx context.Context) {
		if err := o.dm.SavePosition(ctx, p); err != nil {
			logs.Errorf("sep: persist position account=%s code=%s err=%+v", o.account, p.Code, err)
		}
	})
}

func (o *Overlay) persistPositionDetail(d schema.PositionDetail) {
	o.spawn(func(ctx context.Context) {
		if err := o.dm.SavePositionDetail(ctx, d); err != nil {
			logs.Errorf("sep: persist position detail account=%s code=%s price=%s err=%+v", o.account, d.Code, d.Price.String(), err)
		}
	})
}

// recomputeAssetsLocked marks every open position to the last known tick
// and folds the result into PositionValue/PositionPnl. Must be called
// with o.mu held.
func (o *Overlay) recomputeAssetsLocked() {
	positionValue := decimal.Zero
	positionPnl := decimal.Zero

	for _, p := range o.positions {
		if p.Volume == 0 {
			continue
		}
		tick, ok := o.lastTicks[p.Code]
		if !ok {
			continue
		}
		multiplier := o.multiplierLocked(p.Code)
		p.Value = tick.LastPrice.Mul(decimal.NewFromInt(p.Volume)).Mul(multiplier)

		avgOpen := p.AvgOpenPrice(multiplier)
		diff := tick.LastPrice.Sub(avgOpen)
		if p.Direction == schema.DirectionShort {
			diff = decimal.Zero.Sub(diff)
		}
		p.Pnl = diff.Mul(decimal.NewFromInt(p.Volume)).Mul(multiplier)

		positionValue = positionValue.Add(p.Value)
		positionPnl = positionPnl.Add(p.Pnl)
	}

	o.assets.PositionValue = positionValue
	o.assets.PositionPnl = positionPnl
	o.assets.Recompute()
}
