// Package postgres backs datamgr.DataManager with gorm.io/gorm and
// gorm.io/driver/postgres, storing decimal fields as canonical-string
// columns since gorm has no native yanun0323/decimal scanner.
package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/ktrader-tech/broker-facade/internal/datamgr"
	"github.com/ktrader-tech/broker-facade/internal/schema"
)

// Store is a PostgreSQL-backed datamgr.DataManager.
type Store struct {
	db *gorm.DB
}

var _ datamgr.DataManager = (*Store)(nil)

// Open connects to PostgreSQL per opt.
func Open(opt Option) (*Store, error) {
	db, err := open(opt)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Migrate creates or updates every table Store needs.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&assetsModel{}, &orderModel{}, &tradeModel{},
		&positionModel{}, &positionDetailModel{},
		&tradingDayModel{}, &propertyModel{},
	)
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) SaveAssets(ctx context.Context, a schema.Assets) error {
	return s.db.WithContext(ctx).Save(toModelPtr(toAssetsModel(a))).Error
}

func (s *Store) QueryAssets(ctx context.Context, accountID, tradingDay string) (*schema.Assets, error) {
	var m assetsModel
	err := s.db.WithContext(ctx).Where("account_id = ? AND trading_day = ?", accountID, tradingDay).First(&m).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a := fromAssetsModel(m)
	return &a, nil
}

func (s *Store) DeleteAssets(ctx context.Context, accountID, tradingDay string) (int, error) {
	res := s.db.WithContext(ctx).Where("account_id = ? AND trading_day = ?", accountID, tradingDay).Delete(&assetsModel{})
	return int(res.RowsAffected), res.Error
}

func (s *Store) SavePosition(ctx context.Context, p schema.Position) error {
	return s.db.WithContext(ctx).Save(toModelPtr(toPositionModel(p))).Error
}

func (s *Store) QueryPositions(ctx context.Context, filter datamgr.PositionFilter) ([]schema.Position, error) {
	q := s.db.WithContext(ctx).Model(&positionModel{})
	q = applyPositionFilter(q, filter)
	var models []positionModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]schema.Position, len(models))
	for i, m := range models {
		out[i] = fromPositionModel(m)
	}
	return out, nil
}

func (s *Store) DeletePositions(ctx context.Context, filter datamgr.PositionFilter) (int, error) {
	q := applyPositionFilter(s.db.WithContext(ctx).Model(&positionModel{}), filter)
	res := q.Delete(&positionModel{})
	return int(res.RowsAffected), res.Error
}

func applyPositionFilter(q *gorm.DB, filter datamgr.PositionFilter) *gorm.DB {
	if filter.AccountID != "" {
		q = q.Where("account_id = ?", filter.AccountID)
	}
	if filter.Code != "" {
		q = q.Where("code = ?", filter.Code)
	}
	if filter.Direction != schema.DirectionUnknown {
		q = q.Where("direction = ?", uint8(filter.Direction))
	}
	return q
}

func (s *Store) SavePositionDetail(ctx context.Context, d schema.PositionDetail) error {
	return s.db.WithContext(ctx).Save(toModelPtr(toPositionDetailModel(d.AccountID, d))).Error
}

func (s *Store) QueryPositionDetails(ctx context.Context, filter datamgr.PositionDetailFilter) ([]schema.PositionDetail, error) {
	q := s.db.WithContext(ctx).Model(&positionDetailModel{})
	if filter.AccountID != "" {
		q = q.Where("account_id = ?", filter.AccountID)
	}
	if filter.Code != "" {
		q = q.Where("code = ?", filter.Code)
	}
	if filter.Direction != schema.DirectionUnknown {
		q = q.Where("direction = ?", uint8(filter.Direction))
	}
	var models []positionDetailModel
	if err := q.Order("price asc").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]schema.PositionDetail, len(models))
	for i, m := range models {
		out[i] = fromPositionDetailModel(m)
	}
	return out, nil
}

func (s *Store) DeletePositionDetails(ctx context.Context, filter datamgr.PositionDetailFilter) (int, error) {
	q := s.db.WithContext(ctx).Model(&positionDetailModel{})
	if filter.AccountID != "" {
		q = q.Where("account_id = ?", filter.AccountID)
	}
	if filter.Code != "" {
		q = q.Where("code = ?", filter.Code)
	}
	if filter.Direction != schema.DirectionUnknown {
		q = q.Where("direction = ?", uint8(filter.Direction))
	}
	res := q.Delete(&positionDetailModel{})
	return int(res.RowsAffected), res.Error
}

func (s *Store) SaveOrder(ctx context.Context, o schema.Order) error {
	return s.db.WithContext(ctx).Save(toModelPtr(toOrderModel(o))).Error
}

func (s *Store) QueryOrder(ctx context.Context, orderID string) (*schema.Order, error) {
	var m orderModel
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&m).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	o := fromOrderModel(m)
	return &o, nil
}

func (s *Store) QueryOrders(ctx context.Context, filter datamgr.OrderFilter) ([]schema.Order, error) {
	q := s.db.WithContext(ctx).Model(&orderModel{})
	if filter.AccountID != "" {
		q = q.Where("account_id = ?", filter.AccountID)
	}
	if filter.Code != "" {
		q = q.Where("code = ?", filter.Code)
	}
	if filter.Status != schema.OrderStatusUnknown {
		q = q.Where("status = ?", uint8(filter.Status))
	}
	var models []orderModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]schema.Order, len(models))
	for i, m := range models {
		out[i] = fromOrderModel(m)
	}
	return out, nil
}

func (s *Store) DeleteOrders(ctx context.Context, filter datamgr.OrderFilter) (int, error) {
	q := s.db.WithContext(ctx).Model(&orderModel{})
	if filter.AccountID != "" {
		q = q.Where("account_id = ?", filter.AccountID)
	}
	if filter.Code != "" {
		q = q.Where("code = ?", filter.Code)
	}
	res := q.Delete(&orderModel{})
	return int(res.RowsAffected), res.Error
}

func (s *Store) SaveTrade(ctx context.Context, t schema.Trade) error {
	return s.db.WithContext(ctx).Save(toModelPtr(toTradeModel(t))).Error
}

func (s *Store) QueryTrade(ctx context.Context, tradeID string) (*schema.Trade, error) {
	var m tradeModel
	err := s.db.WithContext(ctx).Where("trade_id = ?", tradeID).First(&m).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t := fromTradeModel(m)
	return &t, nil
}

func (s *Store) QueryTrades(ctx context.Context, filter datamgr.TradeFilter) ([]schema.Trade, error) {
	q := s.db.WithContext(ctx).Model(&tradeModel{})
	if filter.Code != "" {
		q = q.Where("code = ?", filter.Code)
	}
	if filter.OrderID != "" {
		q = q.Where("order_id = ?", filter.OrderID)
	}
	var models []tradeModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]schema.Trade, len(models))
	for i, m := range models {
		out[i] = fromTradeModel(m)
	}
	return out, nil
}

func (s *Store) DeleteTrades(ctx context.Context, filter datamgr.TradeFilter) (int, error) {
	q := s.db.WithContext(ctx).Model(&tradeModel{})
	if filter.Code != "" {
		q = q.Where("code = ?", filter.Code)
	}
	if filter.OrderID != "" {
		q = q.Where("order_id = ?", filter.OrderID)
	}
	res := q.Delete(&tradeModel{})
	return int(res.RowsAffected), res.Error
}

func (s *Store) SaveTradingDay(ctx context.Context, accountID, tradingDay string) error {
	return s.db.WithContext(ctx).Save(&tradingDayModel{AccountID: accountID, TradingDay: tradingDay}).Error
}

func (s *Store) QueryTradingDay(ctx context.Context, accountID string) (string, error) {
	var m tradingDayModel
	err := s.db.WithContext(ctx).Where("account_id = ?", accountID).First(&m).Error
	if err == gorm.ErrRecordNotFound {
		return "", nil
	}
	return m.TradingDay, err
}

func (s *Store) QueryPropertyOrDefault(ctx context.Context, accountID, key, defaultValue string) (string, error) {
	var m propertyModel
	err := s.db.WithContext(ctx).Where("account_id = ? AND key = ?", accountID, key).First(&m).Error
	if err == gorm.ErrRecordNotFound {
		return defaultValue, nil
	}
	if err != nil {
		return "", err
	}
	return m.Value, nil
}

func (s *Store) QueryPropertyOrPut(ctx context.Context, accountID, key, putValue string) (string, error) {
	var m propertyModel
	err := s.db.WithContext(ctx).Where("account_id = ? AND key = ?", accountID, key).First(&m).Error
	if err == nil {
		return m.Value, nil
	}
	if err != gorm.ErrRecordNotFound {
		return "", err
	}
	if err := s.db.WithContext(ctx).Create(&propertyModel{AccountID: accountID, Key: key, Value: putValue}).Error; err != nil {
		return "", err
	}
	return putValue, nil
}

func toModelPtr[T any](m T) *T { return &m }
