package schema

import "github.com/yanun0323/decimal"

// Assets is the account-level cash/margin snapshot for one trading day.
//
// Total = InitialCash + TotalClosePnl - TotalCommission + PositionPnl
// Available = Total - PositionValue - FrozenByOrder
type Assets struct {
	AccountID  string
	TradingDay string

	Total          decimal.Decimal
	Available      decimal.Decimal
	PositionValue  decimal.Decimal
	PositionPnl    decimal.Decimal
	FrozenByOrder  decimal.Decimal
	TodayCommission decimal.Decimal

	InitialCash    decimal.Decimal
	TotalClosePnl  decimal.Decimal
	TotalCommission decimal.Decimal
}

// Recompute derives Total and Available from the components above.
func (a *Assets) Recompute() {
	a.Total = a.InitialCash.Add(a.TotalClosePnl).Sub(a.TotalCommission).Add(a.PositionPnl)
	a.Available = a.Total.Sub(a.PositionValue).Sub(a.FrozenByOrder)
}
