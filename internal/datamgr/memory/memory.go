// Package memory is an in-process, map-backed datamgr.DataManager used
// by tests and the demo binary in place of a real database.
package memory

import (
	"context"
	"sync"

	"github.com/ktrader-tech/broker-facade/internal/datamgr"
	"github.com/ktrader-tech/broker-facade/internal/schema"
)

type assetsKey struct{ accountID, tradingDay string }

type positionKey struct {
	accountID, tradingDay, code string
	direction                   schema.Direction
}

type positionDetailKey struct {
	accountID, code string
	direction        schema.Direction
}

type orderKey string
type tradeKey string

// Store is the in-memory reference implementation of datamgr.DataManager.
type Store struct {
	mu sync.RWMutex

	assets          map[assetsKey]schema.Assets
	positions       map[positionKey]schema.Position
	positionDetails map[positionDetailKey][]schema.PositionDetail
	orders          map[orderKey]schema.Order
	trades          map[tradeKey]schema.Trade
	tradingDays     map[string]string
	properties      map[string]map[string]string
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		assets:          make(map[assetsKey]schema.Assets),
		positions:       make(map[positionKey]schema.Position),
		positionDetails: make(map[positionDetailKey][]schema.PositionDetail),
		orders:          make(map[orderKey]schema.Order),
		trades:          make(map[tradeKey]schema.Trade),
		tradingDays:     make(map[string]string),
		properties:      make(map[string]map[string]string),
	}
}

var _ datamgr.DataManager = (*Store)(nil)

func (s *Store) SaveAssets(_ context.Context, a schema.Assets) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[assetsKey{a.AccountID, a.TradingDay}] = a
	return nil
}

func (s *Store) QueryAssets(_ context.Context, accountID, tradingDay string) (*schema.Assets, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[assetsKey{accountID, tradingDay}]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *Store) DeleteAssets(_ context.Context, accountID, tradingDay string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := assetsKey{accountID, tradingDay}
	if _, ok := s.assets[key]; !ok {
		return 0, nil
	}
	delete(s.assets, key)
	return 1, nil
}

func (s *Store) SavePosition(_ context.Context, p schema.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[positionKey{p.AccountID, "", p.Code, p.Direction}] = p
	return nil
}

func (s *Store) QueryPositions(_ context.Context, filter datamgr.PositionFilter) ([]schema.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []schema.Position
	for k, p := range s.positions {
		if filter.AccountID != "" && k.accountID != filter.AccountID {
			continue
		}
		if filter.Code != "" && k.code != filter.Code {
			continue
		}
		if filter.Direction != schema.DirectionUnknown && k.direction != filter.Direction {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) DeletePositions(_ context.Context, filter datamgr.PositionFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.positions {
		if filter.AccountID != "" && k.accountID != filter.AccountID {
			continue
		}
		if filter.Code != "" && k.code != filter.Code {
			continue
		}
		if filter.Direction != schema.DirectionUnknown && k.direction != filter.Direction {
			continue
		}
		delete(s.positions, k)
		n++
	}
	return n, nil
}

func (s *Store) SavePositionDetail(_ context.Context, d schema.PositionDetail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := positionDetailKey{d.AccountID, d.Code, d.Direction}
	lots := s.positionDetails[key]
	for i, lot := range lots {
		if lot.Price.Equal(d.Price) {
			lots[i] = d
			s.positionDetails[key] = lots
			return nil
		}
	}
	s.positionDetails[key] = append(lots, d)
	return nil
}

func (s *Store) QueryPositionDetails(_ context.Context, filter datamgr.PositionDetailFilter) ([]schema.PositionDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []schema.PositionDetail
	for k, lots := range s.positionDetails {
		if filter.AccountID != "" && k.accountID != filter.AccountID {
			continue
		}
		if filter.Code != "" && k.code != filter.Code {
			continue
		}
		if filter.Direction != schema.DirectionUnknown && k.direction != filter.Direction {
			continue
		}
		out = append(out, lots...)
	}
	return out, nil
}

func (s *Store) DeletePositionDetails(_ context.Context, filter datamgr.PositionDetailFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, lots := range s.positionDetails {
		if filter.AccountID != "" && k.accountID != filter.AccountID {
			continue
		}
		if filter.Code != "" && k.code != filter.Code {
			continue
		}
		if filter.Direction != schema.DirectionUnknown && k.direction != filter.Direction {
			continue
		}
		n += len(lots)
		delete(s.positionDetails, k)
	}
	return n, nil
}

func (s *Store) SaveOrder(_ context.Context, o schema.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[orderKey(o.OrderID)] = o
	return nil
}

func (s *Store) QueryOrder(_ context.Context, orderID string) (*schema.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderKey(orderID)]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (s *Store) QueryOrders(_ context.Context, filter datamgr.OrderFilter) ([]schema.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []schema.Order
	for _, o := range s.orders {
		if filter.AccountID != "" && o.AccountID != filter.AccountID {
			continue
		}
		if filter.Code != "" && o.Code != filter.Code {
			continue
		}
		if filter.Status != schema.OrderStatusUnknown && o.Status != filter.Status {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *Store) DeleteOrders(_ context.Context, filter datamgr.OrderFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, o := range s.orders {
		if filter.AccountID != "" && o.AccountID != filter.AccountID {
			continue
		}
		if filter.Code != "" && o.Code != filter.Code {
			continue
		}
		delete(s.orders, k)
		n++
	}
	return n, nil
}

func (s *Store) SaveTrade(_ context.Context, tr schema.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades[tradeKey(tr.TradeID)] = tr
	return nil
}

func (s *Store) QueryTrade(_ context.Context, tradeID string) (*schema.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tr, ok := s.trades[tradeKey(tradeID)]
	if !ok {
		return nil, nil
	}
	return &tr, nil
}

func (s *Store) QueryTrades(_ context.Context, filter datamgr.TradeFilter) ([]schema.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []schema.Trade
	for _, tr := range s.trades {
		if filter.Code != "" && tr.Code != filter.Code {
			continue
		}
		if filter.OrderID != "" && tr.OrderID != filter.OrderID {
			continue
		}
		out = append(out, tr)
	}
	return out, nil
}

func (s *Store) DeleteTrades(_ context.Context, filter datamgr.TradeFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, tr := range s.trades {
		if filter.Code != "" && tr.Code != filter.Code {
			continue
		}
		if filter.OrderID != "" && tr.OrderID != filter.OrderID {
			continue
		}
		delete(s.trades, k)
		n++
	}
	return n, nil
}

func (s *Store) SaveTradingDay(_ context.Context, accountID, tradingDay string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tradingDays[accountID] = tradingDay
	return nil
}

func (s *Store) QueryTradingDay(_ context.Context, accountID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tradingDays[accountID], nil
}

func (s *Store) QueryPropertyOrDefault(_ context.Context, accountID, key, defaultValue string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.properties[accountID][key]; ok {
		return v, nil
	}
	return defaultValue, nil
}

func (s *Store) QueryPropertyOrPut(_ context.Context, accountID, key, putValue string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.properties[accountID] == nil {
		s.properties[accountID] = make(map[string]string)
	}
	if v, ok := s.properties[accountID][key]; ok {
		return v, nil
	}
	s.properties[accountID][key] = putValue
	return putValue, nil
}
