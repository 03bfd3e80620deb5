// Package rediscache decorates a primary datamgr.DataManager with a
// read-through, write-invalidate Redis layer, following the CachedStore
// pattern: writes always go to the primary and then evict the cache key
// (trading days and properties are rewritten in the cache instead);
// reads try Redis first and fall back to the primary on a miss.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ktrader-tech/broker-facade/internal/datamgr"
	"github.com/ktrader-tech/broker-facade/internal/schema"
)

// Store wraps a primary datamgr.DataManager with a Redis cache. Query
// methods without a filter argument (single-entity lookups) are
// read-through cached; filtered list queries and deletes pass straight
// through and invalidate the relevant single-entity keys.
type Store struct {
	primary datamgr.DataManager
	rdb     *redis.Client
	ttl     time.Duration
}

var _ datamgr.DataManager = (*Store)(nil)

// New wraps primary with a Redis cache using the given TTL for cached
// entries. TTL of zero means entries never expire on their own.
func New(primary datamgr.DataManager, rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{primary: primary, rdb: rdb, ttl: ttl}
}

func assetsKey(accountID, tradingDay string) string {
	return fmt.Sprintf("assets:%s:%s", accountID, tradingDay)
}

func orderKey(orderID string) string { return fmt.Sprintf("order:%s", orderID) }
func tradeKey(tradeID string) string { return fmt.Sprintf("trade:%s", tradeID) }
func tradingDayKey(accountID string) string { return fmt.Sprintf("tradingday:%s", accountID) }
func propertyKey(accountID, key string) string { return fmt.Sprintf("property:%s:%s", accountID, key) }

func (s *Store) SaveAssets(ctx context.Context, a schema.Assets) error {
	if err := s.primary.SaveAssets(ctx, a); err != nil {
		return err
	}
	s.rdb.Del(ctx, assetsKey(a.AccountID, a.TradingDay))
	return nil
}

func (s *Store) QueryAssets(ctx context.Context, accountID, tradingDay string) (*schema.Assets, error) {
	key := assetsKey(accountID, tradingDay)
	if data, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
		var a schema.Assets
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}
	a, err := s.primary.QueryAssets(ctx, accountID, tradingDay)
	if err != nil || a == nil {
		return a, err
	}
	s.cache(ctx, key, a)
	return a, nil
}

func (s *Store) DeleteAssets(ctx context.Context, accountID, tradingDay string) (int, error) {
	n, err := s.primary.DeleteAssets(ctx, accountID, tradingDay)
	if err != nil {
		return n, err
	}
	s.rdb.Del(ctx, assetsKey(accountID, tradingDay))
	return n, nil
}

// Position and order-book queries are always filtered lists, so they pass
// straight through: caching a whole scan under a filter-derived key would
// go stale the moment any single row it covers changes.

func (s *Store) SavePosition(ctx context.Context, p schema.Position) error {
	return s.primary.SavePosition(ctx, p)
}

func (s *Store) QueryPositions(ctx context.Context, filter datamgr.PositionFilter) ([]schema.Position, error) {
	return s.primary.QueryPositions(ctx, filter)
}

func (s *Store) DeletePositions(ctx context.Context, filter datamgr.PositionFilter) (int, error) {
	return s.primary.DeletePositions(ctx, filter)
}

func (s *Store) SavePositionDetail(ctx context.Context, d schema.PositionDetail) error {
	return s.primary.SavePositionDetail(ctx, d)
}

func (s *Store) QueryPositionDetails(ctx context.Context, filter datamgr.PositionDetailFilter) ([]schema.PositionDetail, error) {
	return s.primary.QueryPositionDetails(ctx, filter)
}

func (s *Store) DeletePositionDetails(ctx context.Context, filter datamgr.PositionDetailFilter) (int, error) {
	return s.primary.DeletePositionDetails(ctx, filter)
}

func (s *Store) SaveOrder(ctx context.Context, o schema.Order) error {
	if err := s.primary.SaveOrder(ctx, o); err != nil {
		return err
	}
	s.rdb.Del(ctx, orderKey(o.OrderID))
	return nil
}

func (s *Store) QueryOrder(ctx context.Context, orderID string) (*schema.Order, error) {
	key := orderKey(orderID)
	if data, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
		var o schema.Order
		if json.Unmarshal(data, &o) == nil {
			return &o, nil
		}
	}
	o, err := s.primary.QueryOrder(ctx, orderID)
	if err != nil || o == nil {
		return o, err
	}
	s.cache(ctx, key, o)
	return o, nil
}

func (s *Store) QueryOrders(ctx context.Context, filter datamgr.OrderFilter) ([]schema.Order, error) {
	return s.primary.QueryOrders(ctx, filter)
}

func (s *Store) DeleteOrders(ctx context.Context, filter datamgr.OrderFilter) (int, error) {
	// Status is left out of the lookup so every key a primary may delete
	// is evicted, whether or not that primary honors the status filter.
	lookup := filter
	lookup.Status = schema.OrderStatusUnknown
	orders, err := s.primary.QueryOrders(ctx, lookup)
	if err != nil {
		return 0, err
	}
	n, err := s.primary.DeleteOrders(ctx, filter)
	if err != nil {
		return n, err
	}
	for _, o := range orders {
		s.rdb.Del(ctx, orderKey(o.OrderID))
	}
	return n, nil
}

func (s *Store) SaveTrade(ctx context.Context, t schema.Trade) error {
	if err := s.primary.SaveTrade(ctx, t); err != nil {
		return err
	}
	s.rdb.Del(ctx, tradeKey(t.TradeID))
	return nil
}

func (s *Store) QueryTrade(ctx context.Context, tradeID string) (*schema.Trade, error) {
	key := tradeKey(tradeID)
	if data, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
		var t schema.Trade
		if json.Unmarshal(data, &t) == nil {
			return &t, nil
		}
	}
	t, err := s.primary.QueryTrade(ctx, tradeID)
	if err != nil || t == nil {
		return t, err
	}
	s.cache(ctx, key, t)
	return t, nil
}

func (s *Store) QueryTrades(ctx context.Context, filter datamgr.TradeFilter) ([]schema.Trade, error) {
	return s.primary.QueryTrades(ctx, filter)
}

func (s *Store) DeleteTrades(ctx context.Context, filter datamgr.TradeFilter) (int, error) {
	trades, err := s.primary.QueryTrades(ctx, filter)
	if err != nil {
		return 0, err
	}
	n, err := s.primary.DeleteTrades(ctx, filter)
	if err != nil {
		return n, err
	}
	for _, t := range trades {
		s.rdb.Del(ctx, tradeKey(t.TradeID))
	}
	return n, nil
}

func (s *Store) SaveTradingDay(ctx context.Context, accountID, tradingDay string) error {
	if err := s.primary.SaveTradingDay(ctx, accountID, tradingDay); err != nil {
		return err
	}
	s.rdb.Set(ctx, tradingDayKey(accountID), tradingDay, s.ttl)
	return nil
}

func (s *Store) QueryTradingDay(ctx context.Context, accountID string) (string, error) {
	key := tradingDayKey(accountID)
	if v, err := s.rdb.Get(ctx, key).Result(); err == nil {
		return v, nil
	}
	day, err := s.primary.QueryTradingDay(ctx, accountID)
	if err != nil || day == "" {
		return day, err
	}
	s.rdb.Set(ctx, key, day, s.ttl)
	return day, nil
}

func (s *Store) QueryPropertyOrDefault(ctx context.Context, accountID, key, defaultValue string) (string, error) {
	rkey := propertyKey(accountID, key)
	if v, err := s.rdb.Get(ctx, rkey).Result(); err == nil {
		return v, nil
	}
	v, err := s.primary.QueryPropertyOrDefault(ctx, accountID, key, defaultValue)
	if err != nil || v == defaultValue {
		return v, err
	}
	s.rdb.Set(ctx, rkey, v, s.ttl)
	return v, nil
}

func (s *Store) QueryPropertyOrPut(ctx context.Context, accountID, key, putValue string) (string, error) {
	v, err := s.primary.QueryPropertyOrPut(ctx, accountID, key, putValue)
	if err != nil {
		return v, err
	}
	s.rdb.Set(ctx, propertyKey(accountID, key), v, s.ttl)
	return v, nil
}

func (s *Store) cache(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}
