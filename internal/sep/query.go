package sep

import (
	"context"
	"sort"

	"github.com/ktrader-tech/broker-facade/internal/schema"
	"github.com/ktrader-tech/broker-facade/internal/xerror"
)

// Reference-data and market-data queries have no account scope of their
// own, so the overlay simply forwards them to its parent.

func (o *Overlay) QueryLastTick(ctx context.Context, code string, useCache bool) (*schema.Tick, error) {
	return o.parent.QueryLastTick(ctx, code, useCache)
}

func (o *Overlay) QuerySecurity(ctx context.Context, code string, useCache bool) (*schema.Security, error) {
	sec, err := o.parent.QuerySecurity(ctx, code, useCache)
	if err == nil && sec != nil {
		o.mu.Lock()
		o.securityInfos[code] = *sec
		o.mu.Unlock()
	}
	return sec, err
}

func (o *Overlay) QueryAllSecurities(ctx context.Context, useCache bool) ([]schema.Security, error) {
	secs, err := o.parent.QueryAllSecurities(ctx, useCache)
	if err == nil {
		o.mu.Lock()
		for _, s := range secs {
			o.securityInfos[s.Code] = s
		}
		o.mu.Unlock()
	}
	return secs, err
}

func (o *Overlay) SubscribeTick(ctx context.Context, code string, extras map[string]string) error {
	if err := o.parent.SubscribeTick(ctx, code, extras); err != nil {
		return err
	}
	o.mu.Lock()
	o.tickSubscriptions[code] = true
	o.mu.Unlock()
	return nil
}

func (o *Overlay) UnsubscribeTick(ctx context.Context, code string, extras map[string]string) error {
	if err := o.parent.UnsubscribeTick(ctx, code, extras); err != nil {
		return err
	}
	o.mu.Lock()
	delete(o.tickSubscriptions, code)
	o.mu.Unlock()
	return nil
}

func (o *Overlay) SubscribeTicks(ctx context.Context, codes []string, extras map[string]string) error {
	if err := o.parent.SubscribeTicks(ctx, codes, extras); err != nil {
		return err
	}
	o.mu.Lock()
	for _, c := range codes {
		o.tickSubscriptions[c] = true
	}
	o.mu.Unlock()
	return nil
}

func (o *Overlay) SubscribeAllTicks(ctx context.Context, extras map[string]string) error {
	return o.parent.SubscribeAllTicks(ctx, extras)
}

func (o *Overlay) UnsubscribeAllTicks(ctx context.Context) error {
	if err := o.parent.UnsubscribeAllTicks(ctx); err != nil {
		return err
	}
	o.mu.Lock()
	o.tickSubscriptions = make(map[string]bool)
	o.mu.Unlock()
	return nil
}

func (o *Overlay) QueryTickSubscriptions(ctx context.Context, useCache bool) ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	codes := make([]string, 0, len(o.tickSubscriptions))
	for c := range o.tickSubscriptions {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes, nil
}

// Account-scoped queries answer from the overlay's own tracked state
// rather than the parent's.

func (o *Overlay) QueryAssets(_ context.Context, _ bool) (schema.Assets, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.assets, nil
}

func (o *Overlay) QueryPositions(_ context.Context, code string, _ bool) ([]schema.Position, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]schema.Position, 0, len(o.positions))
	for k, p := range o.positions {
		if code != "" && k.code != code {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].Direction < out[j].Direction
	})
	return out, nil
}

func (o *Overlay) QueryPosition(_ context.Context, code string, direction schema.Direction, _ bool) (*schema.Position, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.positions[positionKey{code, direction}]
	if !ok {
		return nil, xerror.ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (o *Overlay) QueryPositionDetails(_ context.Context, code string, _ bool) ([]schema.PositionDetail, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []schema.PositionDetail
	for k, d := range o.positionDetails {
		if code != "" && k.code != code {
			continue
		}
		for _, lot := range d.Lots() {
			out = append(out, *lot)
		}
	}
	return out, nil
}

func (o *Overlay) QueryOrder(_ context.Context, orderID string, _ bool) (*schema.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ord, ok := o.todayOrders[orderID]
	if !ok {
		return nil, xerror.ErrNotFound
	}
	clone := *ord
	return &clone, nil
}

func (o *Overlay) QueryOrders(_ context.Context, code string, onlyUnfinished, _ bool) ([]schema.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]schema.Order, 0, len(o.todayOrders))
	for _, ord := range o.todayOrders {
		if code != "" && ord.Code != code {
			continue
		}
		if onlyUnfinished && ord.Status.IsTerminal() {
			continue
		}
		out = append(out, *ord)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreateTime.Before(out[j].CreateTime) })
	return out, nil
}

func (o *Overlay) QueryTrade(_ context.Context, tradeID string, _ bool) (*schema.Trade, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	tr, ok := o.todayTrades[tradeID]
	if !ok {
		return nil, xerror.ErrNotFound
	}
	clone := *tr
	return &clone, nil
}

func (o *Overlay) QueryTrades(_ context.Context, code, orderID string, _ bool) ([]schema.Trade, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]schema.Trade, 0, len(o.todayTrades))
	for _, tr := range o.todayTrades {
		if code != "" && tr.Code != code {
			continue
		}
		if orderID != "" && tr.OrderID != orderID {
			continue
		}
		out = append(out, *tr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

// Fee-calculation hooks and custom requests are broker-adapter specific
// and carry no sub-account meaning of their own, so they pass straight
// through to the parent.

func (o *Overlay) PrepareFeeCalculation(ctx context.Context, codes []string, extras map[string]string) error {
	return o.parent.PrepareFeeCalculation(ctx, codes, extras)
}

func (o *Overlay) CalculatePosition(ctx context.Context, position *schema.Position, extras map[string]string) error {
	return o.parent.CalculatePosition(ctx, position, extras)
}

func (o *Overlay) CalculateOrder(ctx context.Context, order *schema.Order, extras map[string]string) error {
	return o.parent.CalculateOrder(ctx, order, extras)
}

func (o *Overlay) CalculateTrade(ctx context.Context, trade *schema.Trade, extras map[string]string) error {
	return o.parent.CalculateTrade(ctx, trade, extras)
}

func (o *Overlay) CustomRequest(ctx context.Context, method string, params map[string]string) (map[string]string, error) {
	return o.parent.CustomRequest(ctx, method, params)
}

func (o *Overlay) CustomSuspendRequest(ctx context.Context, method string, params map[string]string) (map[string]string, error) {
	return o.parent.CustomSuspendRequest(ctx, method, params)
}
