package sep

import (
	"context"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/ktrader-tech/broker-facade/internal/schema"
	"github.com/ktrader-tech/broker-facade/internal/xerror"
)

// InsertOrder validates the order against this overlay's own frozen cash
// and closeable volume, forwards it to the parent unchanged, and records
// it under this overlay's own account before returning. The freeze taken
// here is released or converted to realized cost as fills or a terminal
// status arrive over the parent's event bus.
func (o *Overlay) InsertOrder(
	ctx context.Context,
	code string,
	price decimal.Decimal,
	volume int64,
	direction schema.Direction,
	offset schema.Offset,
	orderType schema.OrderType,
	minVolume int64,
	extras map[string]string,
) (schema.Order, error) {
	o.mu.Lock()
	metrics := o.metrics
	if o.disabled {
		o.mu.Unlock()
		metrics.IncOrderFailed()
		return schema.Order{}, xerror.ErrDisabled
	}
	if direction == schema.DirectionUnknown || offset == schema.OffsetUnknown {
		o.mu.Unlock()
		metrics.IncOrderFailed()
		return schema.Order{}, xerror.ErrUnknownOffsetDirection
	}

	bookDirection := schema.PositionBookDirection(direction, offset)
	o.mu.Unlock()

	frozenCash := decimal.Zero
	if offset == schema.OffsetOpen {
		dry := schema.Order{
			Code:      code,
			Price:     price,
			Volume:    volume,
			Direction: direction,
			Offset:    offset,
			OrderType: orderType,
		}
		if err := o.parent.CalculateOrder(ctx, &dry, extras); err != nil {
			metrics.IncOrderFailed()
			return schema.Order{}, errors.Wrap(err, "sep: calculate order margin")
		}
		frozenCash = dry.FrozenCash
	}

	o.mu.Lock()
	if offset == schema.OffsetOpen {
		if frozenCash.GreaterThan(o.assets.Available) {
			o.mu.Unlock()
			metrics.IncOrderFailed()
			return schema.Order{}, xerror.ErrInsufficientCash
		}
	} else {
		pos := o.positionLocked(code, bookDirection)
		var closeable int64
		switch offset {
		case schema.OffsetCloseToday:
			closeable = pos.CloseableTodayVolume()
		case schema.OffsetCloseYesterday:
			closeable = pos.CloseableYesterdayVolume()
		default:
			closeable = pos.CloseableVolume()
		}
		if volume > closeable {
			o.mu.Unlock()
			metrics.IncOrderFailed()
			return schema.Order{}, xerror.ErrInsufficientCloseable
		}
		o.freezePositionLocked(pos, offset, volume)
	}

	o.mu.Unlock()

	order, err := o.parent.InsertOrder(ctx, code, price, volume, direction, offset, orderType, minVolume, extras)
	if err != nil {
		o.mu.Lock()
		if offset == schema.OffsetOpen {
			// nothing was frozen against assets beyond the check above.
		} else {
			pos := o.positionLocked(code, bookDirection)
			o.unfreezePositionLocked(pos, offset, volume)
		}
		o.mu.Unlock()
		metrics.IncOrderFailed()
		return schema.Order{}, errors.Wrap(err, "sep: parent insert order")
	}

	o.mu.Lock()
	local := order
	local.AccountID = o.account
	if raw, ok := extras["closePositionPrice"]; ok {
		if target, err := decimal.NewFromString(raw); err == nil {
			local.ClosePositionPrice = &target
		}
	}
	if offset == schema.OffsetOpen {
		o.assets.FrozenByOrder = o.assets.FrozenByOrder.Add(frozenCash)
		o.assets.Recompute()
	}
	o.todayOrders[local.OrderID] = &local
	o.mu.Unlock()

	metrics.IncOrderSent()
	o.persistOrder(ctx, local)
	o.scheduleAssetsRefresh()

	if err := o.SubscribeTick(ctx, code, nil); err != nil {
		logs.Errorf("sep: subscribe tick after insert order account=%s code=%s err=%+v", o.account, code, err)
	}

	return local, nil
}

// freezePositionLocked reserves volume against the closeable counters the
// requested offset draws from. Must be called with o.mu held.
func (o *Overlay) freezePositionLocked(pos *schema.Position, offset schema.Offset, volume int64) {
	switch offset {
	case schema.OffsetCloseToday:
		pos.FrozenTodayVolume += volume
	case schema.OffsetCloseYesterday:
		pos.FrozenYesterdayVolume += volume
	default:
		pos.FrozenVolume += volume
	}
}

// unfreezePositionLocked releases a reservation taken by
// freezePositionLocked, e.g. on order rejection, cancellation, or partial
// cancellation of the unfilled remainder. Must be called with o.mu held.
func (o *Overlay) unfreezePositionLocked(pos *schema.Position, offset schema.Offset, volume int64) {
	switch offset {
	case schema.OffsetCloseToday:
		pos.FrozenTodayVolume -= volume
		if pos.FrozenTodayVolume < 0 {
			pos.FrozenTodayVolume = 0
		}
	case schema.OffsetCloseYesterday:
		pos.FrozenYesterdayVolume -= volume
		if pos.FrozenYesterdayVolume < 0 {
			pos.FrozenYesterdayVolume = 0
		}
	default:
		pos.FrozenVolume -= volume
		if pos.FrozenVolume < 0 {
			pos.FrozenVolume = 0
		}
	}
}

func (o *Overlay) CancelOrder(ctx context.Context, orderID string, extras map[string]string) error {
	o.mu.Lock()
	if _, ok := o.todayOrders[orderID]; !ok {
		o.mu.Unlock()
		return xerror.ErrOrderNotFound
	}
	o.mu.Unlock()
	return o.parent.CancelOrder(ctx, orderID, extras)
}

func (o *Overlay) CancelAllOrders(ctx context.Context, extras map[string]string) error {
	o.mu.Lock()
	ids := make([]string, 0, len(o.todayOrders))
	for id, ord := range o.todayOrders {
		if !ord.Status.IsTerminal() {
			ids = append(ids, id)
		}
	}
	o.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := o.parent.CancelOrder(ctx, id, extras); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
