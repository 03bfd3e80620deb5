package schema

import (
	"time"

	"github.com/yanun0323/decimal"
)

// PriceLevel is one row of a book side: a price and the volume resting
// at that price.
type PriceLevel struct {
	Price  decimal.Decimal
	Volume int64
}

// Tick is an immutable snapshot of one instrument at one instant. Bid
// levels are sorted descending (index 0 is the best bid); ask levels are
// sorted ascending (index 0 is the best ask).
type Tick struct {
	Code string
	Time time.Time

	LastPrice decimal.Decimal
	Bids      []PriceLevel
	Asks      []PriceLevel

	TodayVolume      int64
	TodayTurnover    decimal.Decimal
	TodayOpenInterest int64

	Volume       int64
	Turnover     decimal.Decimal
	OpenInterest int64

	Status MarketStatus

	PreClose    decimal.Decimal
	PreSettle   decimal.Decimal
	UpperLimit  decimal.Decimal
	LowerLimit  decimal.Decimal
}

// BestBid returns the best bid level, or the zero level if the book side
// is empty.
func (t Tick) BestBid() PriceLevel {
	if len(t.Bids) == 0 {
		return PriceLevel{}
	}
	return t.Bids[0]
}

// BestAsk returns the best ask level, or the zero level if the book side
// is empty.
func (t Tick) BestAsk() PriceLevel {
	if len(t.Asks) == 0 {
		return PriceLevel{}
	}
	return t.Asks[0]
}
