package schema

import (
	"time"

	"github.com/yanun0323/decimal"
)

// Order is a single order's full lifecycle record. OrderID is unique
// within its owning account.
type Order struct {
	OrderID   string
	AccountID string
	Code      string

	Price     decimal.Decimal
	Volume    int64
	Direction Direction
	Offset    Offset
	OrderType OrderType

	Status    OrderStatus
	StatusMsg string

	FilledVolume int64
	Turnover     decimal.Decimal
	AvgFillPrice decimal.Decimal
	FrozenCash   decimal.Decimal
	Commission   decimal.Decimal

	CreateTime time.Time
	UpdateTime time.Time

	// ClosePositionPrice, when set, is the target price the SEP overlay's
	// close-lot selection binary-searches for. MinVolume is the FAK
	// dry-run's minimum acceptable fill.
	ClosePositionPrice *decimal.Decimal
	MinVolume          int64
}

// Clone returns a deep copy safe to hand across goroutine/event
// boundaries.
func (o Order) Clone() Order {
	clone := o
	if o.ClosePositionPrice != nil {
		v := *o.ClosePositionPrice
		clone.ClosePositionPrice = &v
	}
	return clone
}

// RemainingVolume is Volume minus FilledVolume.
func (o Order) RemainingVolume() int64 {
	return o.Volume - o.FilledVolume
}
