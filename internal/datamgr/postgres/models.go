package postgres

import (
	"time"

	"github.com/yanun0323/decimal"

	"github.com/ktrader-tech/broker-facade/internal/schema"
)

// gorm has no native scanner for yanun0323/decimal, so every monetary
// column is stored as its canonical decimal string and converted at the
// model boundary.

type assetsModel struct {
	AccountID  string `gorm:"primaryKey;column:account_id"`
	TradingDay string `gorm:"primaryKey;column:trading_day"`

	Total           string
	Available       string
	PositionValue   string
	PositionPnl     string
	FrozenByOrder   string
	TodayCommission string

	InitialCash     string
	TotalClosePnl   string
	TotalCommission string
}

func (assetsModel) TableName() string { return "sep_assets" }

func toAssetsModel(a schema.Assets) assetsModel {
	return assetsModel{
		AccountID:       a.AccountID,
		TradingDay:      a.TradingDay,
		Total:           a.Total.String(),
		Available:       a.Available.String(),
		PositionValue:   a.PositionValue.String(),
		PositionPnl:     a.PositionPnl.String(),
		FrozenByOrder:   a.FrozenByOrder.String(),
		TodayCommission: a.TodayCommission.String(),
		InitialCash:     a.InitialCash.String(),
		TotalClosePnl:   a.TotalClosePnl.String(),
		TotalCommission: a.TotalCommission.String(),
	}
}

func fromAssetsModel(m assetsModel) schema.Assets {
	return schema.Assets{
		AccountID:       m.AccountID,
		TradingDay:      m.TradingDay,
		Total:           mustDecimal(m.Total),
		Available:       mustDecimal(m.Available),
		PositionValue:   mustDecimal(m.PositionValue),
		PositionPnl:     mustDecimal(m.PositionPnl),
		FrozenByOrder:   mustDecimal(m.FrozenByOrder),
		TodayCommission: mustDecimal(m.TodayCommission),
		InitialCash:     mustDecimal(m.InitialCash),
		TotalClosePnl:   mustDecimal(m.TotalClosePnl),
		TotalCommission: mustDecimal(m.TotalCommission),
	}
}

type orderModel struct {
	OrderID            string `gorm:"primaryKey;column:order_id"`
	AccountID          string
	Code               string
	Price              string
	Volume             int64
	Direction          uint8
	Offset             uint8
	OrderType          uint8
	Status             uint8
	StatusMsg          string
	FilledVolume       int64
	Turnover           string
	AvgFillPrice       string
	FrozenCash         string
	Commission         string
	CreateTime         time.Time
	UpdateTime         time.Time
	ClosePositionPrice *string
	MinVolume          int64
}

func (orderModel) TableName() string { return "sep_orders" }

func toOrderModel(o schema.Order) orderModel {
	m := orderModel{
		OrderID:      o.OrderID,
		AccountID:    o.AccountID,
		Code:         o.Code,
		Price:        o.Price.String(),
		Volume:       o.Volume,
		Direction:    uint8(o.Direction),
		Offset:       uint8(o.Offset),
		OrderType:    uint8(o.OrderType),
		Status:       uint8(o.Status),
		StatusMsg:    o.StatusMsg,
		FilledVolume: o.FilledVolume,
		Turnover:     o.Turnover.String(),
		AvgFillPrice: o.AvgFillPrice.String(),
		FrozenCash:   o.FrozenCash.String(),
		Commission:   o.Commission.String(),
		CreateTime:   o.CreateTime,
		UpdateTime:   o.UpdateTime,
		MinVolume:    o.MinVolume,
	}
	if o.ClosePositionPrice != nil {
		s := o.ClosePositionPrice.String()
		m.ClosePositionPrice = &s
	}
	return m
}

func fromOrderModel(m orderModel) schema.Order {
	o := schema.Order{
		OrderID:      m.OrderID,
		AccountID:    m.AccountID,
		Code:         m.Code,
		Price:        mustDecimal(m.Price),
		Volume:       m.Volume,
		Direction:    schema.Direction(m.Direction),
		Offset:       schema.Offset(m.Offset),
		OrderType:    schema.OrderType(m.OrderType),
		Status:       schema.OrderStatus(m.Status),
		StatusMsg:    m.StatusMsg,
		FilledVolume: m.FilledVolume,
		Turnover:     mustDecimal(m.Turnover),
		AvgFillPrice: mustDecimal(m.AvgFillPrice),
		FrozenCash:   mustDecimal(m.FrozenCash),
		Commission:   mustDecimal(m.Commission),
		CreateTime:   m.CreateTime,
		UpdateTime:   m.UpdateTime,
		MinVolume:    m.MinVolume,
	}
	if m.ClosePositionPrice != nil {
		v := mustDecimal(*m.ClosePositionPrice)
		o.ClosePositionPrice = &v
	}
	return o
}

type tradeModel struct {
	TradeID    string `gorm:"primaryKey;column:trade_id"`
	OrderID    string
	Code       string
	Price      string
	Volume     int64
	Turnover   string
	Commission string
	Direction  uint8
	Offset     uint8
	Time       time.Time
}

func (tradeModel) TableName() string { return "sep_trades" }

func toTradeModel(t schema.Trade) tradeModel {
	return tradeModel{
		TradeID:    t.TradeID,
		OrderID:    t.OrderID,
		Code:       t.Code,
		Price:      t.Price.String(),
		Volume:     t.Volume,
		Turnover:   t.Turnover.String(),
		Commission: t.Commission.String(),
		Direction:  uint8(t.Direction),
		Offset:     uint8(t.Offset),
		Time:       t.Time,
	}
}

func fromTradeModel(m tradeModel) schema.Trade {
	return schema.Trade{
		TradeID:    m.TradeID,
		OrderID:    m.OrderID,
		Code:       m.Code,
		Price:      mustDecimal(m.Price),
		Volume:     m.Volume,
		Turnover:   mustDecimal(m.Turnover),
		Commission: mustDecimal(m.Commission),
		Direction:  schema.Direction(m.Direction),
		Offset:     schema.Offset(m.Offset),
		Time:       m.Time,
	}
}

type positionModel struct {
	AccountID string `gorm:"primaryKey;column:account_id"`
	Code      string `gorm:"primaryKey"`
	Direction uint8  `gorm:"primaryKey"`

	PreVolume             int64
	Volume                int64
	TodayVolume           int64
	FrozenVolume          int64
	FrozenTodayVolume     int64
	FrozenYesterdayVolume int64
	TodayOpenVolume       int64
	TodayCloseVolume      int64
	TodayCommission       string
	OpenCost              string
	LastPrice             string
	Pnl                   string
	Value                 string
}

func (positionModel) TableName() string { return "sep_positions" }

func toPositionModel(p schema.Position) positionModel {
	return positionModel{
		AccountID:             p.AccountID,
		Code:                  p.Code,
		Direction:             uint8(p.Direction),
		PreVolume:             p.PreVolume,
		Volume:                p.Volume,
		TodayVolume:           p.TodayVolume,
		FrozenVolume:          p.FrozenVolume,
		FrozenTodayVolume:     p.FrozenTodayVolume,
		FrozenYesterdayVolume: p.FrozenYesterdayVolume,
		TodayOpenVolume:       p.TodayOpenVolume,
		TodayCloseVolume:      p.TodayCloseVolume,
		TodayCommission:       p.TodayCommission.String(),
		OpenCost:              p.OpenCost.String(),
		LastPrice:             p.LastPrice.String(),
		Pnl:                   p.Pnl.String(),
		Value:                 p.Value.String(),
	}
}

func fromPositionModel(m positionModel) schema.Position {
	return schema.Position{
		AccountID:             m.AccountID,
		Code:                  m.Code,
		Direction:             schema.Direction(m.Direction),
		PreVolume:             m.PreVolume,
		Volume:                m.Volume,
		TodayVolume:           m.TodayVolume,
		FrozenVolume:          m.FrozenVolume,
		FrozenTodayVolume:     m.FrozenTodayVolume,
		FrozenYesterdayVolume: m.FrozenYesterdayVolume,
		TodayOpenVolume:       m.TodayOpenVolume,
		TodayCloseVolume:      m.TodayCloseVolume,
		TodayCommission:       mustDecimal(m.TodayCommission),
		OpenCost:              mustDecimal(m.OpenCost),
		LastPrice:             mustDecimal(m.LastPrice),
		Pnl:                   mustDecimal(m.Pnl),
		Value:                 mustDecimal(m.Value),
	}
}

type positionDetailModel struct {
	AccountID   string `gorm:"primaryKey;column:account_id"`
	Code        string `gorm:"primaryKey"`
	Direction   uint8  `gorm:"primaryKey"`
	Price       string `gorm:"primaryKey"`
	Volume      int64
	TodayVolume int64
	UpdateTime  time.Time
}

func (positionDetailModel) TableName() string { return "sep_position_details" }

func toPositionDetailModel(accountID string, d schema.PositionDetail) positionDetailModel {
	return positionDetailModel{
		AccountID:   accountID,
		Code:        d.Code,
		Direction:   uint8(d.Direction),
		Price:       d.Price.String(),
		Volume:      d.Volume,
		TodayVolume: d.TodayVolume,
		UpdateTime:  d.UpdateTime,
	}
}

func fromPositionDetailModel(m positionDetailModel) schema.PositionDetail {
	return schema.PositionDetail{
		AccountID:   m.AccountID,
		Code:        m.Code,
		Direction:   schema.Direction(m.Direction),
		Price:       mustDecimal(m.Price),
		Volume:      m.Volume,
		TodayVolume: m.TodayVolume,
		UpdateTime:  m.UpdateTime,
	}
}

type tradingDayModel struct {
	AccountID  string `gorm:"primaryKey;column:account_id"`
	TradingDay string
}

func (tradingDayModel) TableName() string { return "sep_trading_days" }

type propertyModel struct {
	AccountID string `gorm:"primaryKey;column:account_id"`
	Key       string `gorm:"primaryKey"`
	Value     string
}

func (propertyModel) TableName() string { return "sep_properties" }

func mustDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
