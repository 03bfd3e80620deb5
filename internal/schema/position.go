package schema

import (
	"sort"
	"time"

	"github.com/yanun0323/decimal"
)

// Position is the aggregate of every open-price lot for one
// (accountId, code, direction).
type Position struct {
	AccountID string
	Code      string
	Direction Direction

	PreVolume       int64
	Volume          int64
	TodayVolume     int64
	FrozenVolume    int64
	FrozenTodayVolume int64
	// FrozenYesterdayVolume is not part of the distilled field list but is
	// required by the CLOSE_YESTERDAY closeable-volume check in the SEP
	// overlay's order validation.
	FrozenYesterdayVolume int64

	TodayOpenVolume  int64
	TodayCloseVolume int64
	TodayCommission  decimal.Decimal

	OpenCost decimal.Decimal

	LastPrice decimal.Decimal
	Pnl       decimal.Decimal
	Value     decimal.Decimal
}

// YesterdayVolume derives volume held before today's trading.
func (p Position) YesterdayVolume() int64 {
	return p.Volume - p.TodayVolume
}

// CloseableVolume derives the volume available to close under the
// unqualified CLOSE offset.
func (p Position) CloseableVolume() int64 {
	return p.Volume - p.FrozenVolume
}

// CloseableTodayVolume derives the volume available under CLOSE_TODAY.
func (p Position) CloseableTodayVolume() int64 {
	return p.TodayVolume - p.FrozenTodayVolume
}

// CloseableYesterdayVolume derives the volume available under
// CLOSE_YESTERDAY.
func (p Position) CloseableYesterdayVolume() int64 {
	return p.YesterdayVolume() - p.FrozenYesterdayVolume
}

// AvgOpenPrice derives OpenCost / (Volume * multiplier).
func (p Position) AvgOpenPrice(multiplier decimal.Decimal) decimal.Decimal {
	denom := multiplier.Mul(decimal.NewFromInt(p.Volume))
	if denom.IsZero() {
		return decimal.Zero
	}
	return p.OpenCost.Div(denom)
}

// PositionDetail is one open-price lot.
type PositionDetail struct {
	AccountID string
	Code      string
	Direction Direction

	Price       decimal.Decimal
	Volume      int64
	TodayVolume int64

	UpdateTime time.Time
}

// YesterdayVolume derives lot volume held before today's trading.
func (d PositionDetail) YesterdayVolume() int64 {
	return d.Volume - d.TodayVolume
}

// PositionDetails is a sorted container of PositionDetail lots for one
// (code, direction), kept in strictly ascending price order with no two
// lots sharing a price. Lookups are binary by price.
type PositionDetails struct {
	AccountID string
	Code      string
	Direction Direction
	lots      []*PositionDetail
}

// NewPositionDetails creates an empty sorted lot container.
func NewPositionDetails(accountID, code string, direction Direction) *PositionDetails {
	return &PositionDetails{AccountID: accountID, Code: code, Direction: direction}
}

// Lots returns the underlying sorted slice. Callers must not mutate the
// slice header (append/remove); mutate lot fields in place if needed.
func (d *PositionDetails) Lots() []*PositionDetail {
	return d.lots
}

// Len returns the number of lots.
func (d *PositionDetails) Len() int {
	return len(d.lots)
}

// IndexOf returns the index of the lot at the given price, and whether
// one exists.
func (d *PositionDetails) IndexOf(price decimal.Decimal) (int, bool) {
	i := sort.Search(len(d.lots), func(i int) bool {
		return !d.lots[i].Price.LessThan(price)
	})
	if i < len(d.lots) && d.lots[i].Price.Equal(price) {
		return i, true
	}
	return i, false
}

// SearchStraddle returns the index of the first lot with Price >= target
// (insertion point). Candidate lots straddling target for close-lot
// selection are lots[idx-1] (below target) and lots[idx] (at-or-above
// target).
func (d *PositionDetails) SearchStraddle(target decimal.Decimal) int {
	return sort.Search(len(d.lots), func(i int) bool {
		return !d.lots[i].Price.LessThan(target)
	})
}

// Upsert merges into an existing lot at the same price, or inserts a new
// lot preserving ascending-price order.
func (d *PositionDetails) Upsert(price decimal.Decimal, volume, todayVolume int64, updateTime time.Time) *PositionDetail {
	idx, ok := d.IndexOf(price)
	if ok {
		lot := d.lots[idx]
		lot.Volume += volume
		lot.TodayVolume += todayVolume
		if updateTime.After(lot.UpdateTime) {
			lot.UpdateTime = updateTime
		}
		return lot
	}
	lot := &PositionDetail{
		AccountID:   d.AccountID,
		Code:        d.Code,
		Direction:   d.Direction,
		Price:       price,
		Volume:      volume,
		TodayVolume: todayVolume,
		UpdateTime:  updateTime,
	}
	d.lots = append(d.lots, nil)
	copy(d.lots[idx+1:], d.lots[idx:])
	d.lots[idx] = lot
	return lot
}

// RemoveAt deletes the lot at index idx, preserving order.
func (d *PositionDetails) RemoveAt(idx int) {
	d.lots = append(d.lots[:idx], d.lots[idx+1:]...)
}

// PruneEmpty removes every lot whose Volume has reached zero.
func (d *PositionDetails) PruneEmpty() {
	out := d.lots[:0]
	for _, lot := range d.lots {
		if lot.Volume > 0 {
			out = append(out, lot)
		}
	}
	d.lots = out
}

// OpenCost derives Σ price*volume*multiplier over every lot.
func (d *PositionDetails) OpenCost(multiplier decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, lot := range d.lots {
		total = total.Add(lot.Price.Mul(decimal.NewFromInt(lot.Volume)).Mul(multiplier))
	}
	return total
}

// TotalVolume derives Σ volume over every lot.
func (d *PositionDetails) TotalVolume() int64 {
	var total int64
	for _, lot := range d.lots {
		total += lot.Volume
	}
	return total
}

// TotalTodayVolume derives Σ todayVolume over every lot.
func (d *PositionDetails) TotalTodayVolume() int64 {
	var total int64
	for _, lot := range d.lots {
		total += lot.TodayVolume
	}
	return total
}

// BiPosition pairs the long and short Position for one code. Either side
// may be absent (nil), never a zero-volume placeholder.
type BiPosition struct {
	Code  string
	Long  *Position
	Short *Position
}

// Side returns the Position for the given direction, or nil.
func (b BiPosition) Side(direction Direction) *Position {
	switch direction {
	case DirectionLong:
		return b.Long
	case DirectionShort:
		return b.Short
	default:
		return nil
	}
}

// BiPositionDetails pairs the long and short lot containers for one code.
type BiPositionDetails struct {
	Code  string
	Long  *PositionDetails
	Short *PositionDetails
}

// Side returns the lot container for the given direction, or nil.
func (b BiPositionDetails) Side(direction Direction) *PositionDetails {
	switch direction {
	case DirectionLong:
		return b.Long
	case DirectionShort:
		return b.Short
	default:
		return nil
	}
}
