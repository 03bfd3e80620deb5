package schema

import (
	"time"

	"github.com/yanun0323/decimal"
)

// Trade is an immutable fill record referencing an Order.
type Trade struct {
	TradeID string
	OrderID string
	Code    string

	Price      decimal.Decimal
	Volume     int64
	Turnover   decimal.Decimal
	Commission decimal.Decimal

	Direction Direction
	Offset    Offset
	Time      time.Time
}

// Clone returns a copy safe to hand across goroutine/event boundaries.
func (t Trade) Clone() Trade {
	return t
}
