// Package facade defines the broker capability interface (C8): the
// operation set a concrete adapter, or the Tick Order Matcher's built-in
// simulator, must expose to a SEP Overlay or any other consumer that
// treats "the broker" as a single abstraction.
package facade

import (
	"context"

	"github.com/yanun0323/decimal"

	"github.com/ktrader-tech/broker-facade/internal/schema"
)

// BrokerAPI is the operation set a broker adapter exposes: connection
// lifecycle, reference data, account/position/order/trade queries, order
// entry, and the fee-calculation hooks the tick order matcher invokes as
// trade side-effects. A SEP Overlay both consumes a BrokerAPI (its
// parent) and exposes one itself, so a chain of overlays can nest
// arbitrarily deep.
type BrokerAPI interface {
	// Name and Account identify the instance; a SEP Overlay derives its
	// own from its parent's (name+"-SEP", account+"-"+sepAccount).
	Name() string
	Account() string

	Connect(ctx context.Context, extras map[string]string) error
	Close(ctx context.Context) error
	TradingDay(ctx context.Context) (string, error)

	QueryLastTick(ctx context.Context, code string, useCache bool) (*schema.Tick, error)
	QuerySecurity(ctx context.Context, code string, useCache bool) (*schema.Security, error)
	QueryAllSecurities(ctx context.Context, useCache bool) ([]schema.Security, error)

	QueryAssets(ctx context.Context, useCache bool) (schema.Assets, error)
	QueryPositions(ctx context.Context, code string, useCache bool) ([]schema.Position, error)
	QueryPosition(ctx context.Context, code string, direction schema.Direction, useCache bool) (*schema.Position, error)
	QueryPositionDetails(ctx context.Context, code string, useCache bool) ([]schema.PositionDetail, error)

	QueryOrder(ctx context.Context, orderID string, useCache bool) (*schema.Order, error)
	QueryOrders(ctx context.Context, code string, onlyUnfinished, useCache bool) ([]schema.Order, error)
	QueryTrade(ctx context.Context, tradeID string, useCache bool) (*schema.Trade, error)
	QueryTrades(ctx context.Context, code, orderID string, useCache bool) ([]schema.Trade, error)

	SubscribeTick(ctx context.Context, code string, extras map[string]string) error
	UnsubscribeTick(ctx context.Context, code string, extras map[string]string) error
	SubscribeTicks(ctx context.Context, codes []string, extras map[string]string) error
	SubscribeAllTicks(ctx context.Context, extras map[string]string) error
	UnsubscribeAllTicks(ctx context.Context) error
	QueryTickSubscriptions(ctx context.Context, useCache bool) ([]string, error)

	InsertOrder(ctx context.Context, code string, price decimal.Decimal, volume int64, direction schema.Direction, offset schema.Offset, orderType schema.OrderType, minVolume int64, extras map[string]string) (schema.Order, error)
	CancelOrder(ctx context.Context, orderID string, extras map[string]string) error
	CancelAllOrders(ctx context.Context, extras map[string]string) error

	PrepareFeeCalculation(ctx context.Context, codes []string, extras map[string]string) error
	CalculatePosition(ctx context.Context, position *schema.Position, extras map[string]string) error
	CalculateOrder(ctx context.Context, order *schema.Order, extras map[string]string) error
	CalculateTrade(ctx context.Context, trade *schema.Trade, extras map[string]string) error

	CustomRequest(ctx context.Context, method string, params map[string]string) (map[string]string, error)
	CustomSuspendRequest(ctx context.Context, method string, params map[string]string) (map[string]string, error)
}

// EventSource is the narrower capability a SEP Overlay needs from its
// parent beyond BrokerAPI: the ability to subscribe to (and later revoke)
// events on the parent's own bus. Kept separate from BrokerAPI itself so
// callers that only ever consume query/order operations aren't forced to
// depend on the bus.
type EventSource interface {
	Subscribe(types []schema.EventType, tag string, handler func(schema.BrokerEvent))
	RemoveSubscribersByTag(tag string)
}

// AllEventTypes lists every event type a SEP Overlay subscribes to on
// connect, so it can rebroadcast the parent's full event stream on its
// own bus.
var AllEventTypes = []schema.EventType{
	schema.EventCustom,
	schema.EventLog,
	schema.EventNewTradingDay,
	schema.EventConnection,
	schema.EventTick,
	schema.EventBar,
	schema.EventOrderStatus,
	schema.EventCancelFailed,
	schema.EventTradeReport,
}
