// Package datamgr defines the Data-Manager Port (C7): a narrow
// blocking, context-aware persistence boundary for the entity types a SEP Overlay
// needs to survive a restart, plus a small key-value property store.
// Storage engines live in sibling packages (memory, postgres,
// rediscache); this package only declares the contract.
package datamgr

import (
	"context"

	"github.com/ktrader-tech/broker-facade/internal/schema"
)

// OrderFilter narrows QueryOrders. A zero-value field means "any".
type OrderFilter struct {
	AccountID  string
	TradingDay string
	Code       string
	Status     schema.OrderStatus
}

// TradeFilter narrows QueryTrades. A zero-value field means "any".
type TradeFilter struct {
	AccountID  string
	TradingDay string
	Code       string
	OrderID    string
}

// PositionFilter narrows QueryPositions. A zero-value field means "any".
type PositionFilter struct {
	AccountID  string
	TradingDay string
	Code       string
	Direction  schema.Direction
}

// PositionDetailFilter narrows QueryPositionDetails.
type PositionDetailFilter struct {
	AccountID string
	Code      string
	Direction schema.Direction
}

// DataManager is the persistence port every SEP Overlay is built against.
// Implementations must round-trip every field of every entity, including
// nil-safe zero values; nullable filter fields mean "any". Delete methods
// return the number of affected rows.
type DataManager interface {
	SaveAssets(ctx context.Context, a schema.Assets) error
	QueryAssets(ctx context.Context, accountID, tradingDay string) (*schema.Assets, error)
	DeleteAssets(ctx context.Context, accountID, tradingDay string) (int, error)

	SavePosition(ctx context.Context, p schema.Position) error
	QueryPositions(ctx context.Context, filter PositionFilter) ([]schema.Position, error)
	DeletePositions(ctx context.Context, filter PositionFilter) (int, error)

	SavePositionDetail(ctx context.Context, d schema.PositionDetail) error
	QueryPositionDetails(ctx context.Context, filter PositionDetailFilter) ([]schema.PositionDetail, error)
	DeletePositionDetails(ctx context.Context, filter PositionDetailFilter) (int, error)

	SaveOrder(ctx context.Context, o schema.Order) error
	QueryOrder(ctx context.Context, orderID string) (*schema.Order, error)
	QueryOrders(ctx context.Context, filter OrderFilter) ([]schema.Order, error)
	DeleteOrders(ctx context.Context, filter OrderFilter) (int, error)

	SaveTrade(ctx context.Context, t schema.Trade) error
	QueryTrade(ctx context.Context, tradeID string) (*schema.Trade, error)
	QueryTrades(ctx context.Context, filter TradeFilter) ([]schema.Trade, error)
	DeleteTrades(ctx context.Context, filter TradeFilter) (int, error)

	SaveTradingDay(ctx context.Context, accountID, tradingDay string) error
	QueryTradingDay(ctx context.Context, accountID string) (string, error)

	// QueryPropertyOrDefault returns the stored property for key, or
	// defaultValue (without persisting it) when absent.
	QueryPropertyOrDefault(ctx context.Context, accountID, key, defaultValue string) (string, error)
	// QueryPropertyOrPut returns the stored property for key, persisting
	// putValue as the new value first when absent.
	QueryPropertyOrPut(ctx context.Context, accountID, key, putValue string) (string, error)
}
