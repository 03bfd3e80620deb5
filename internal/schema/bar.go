package schema

import (
	"time"

	"github.com/yanun0323/decimal"
)

// Bar is an OHLCV aggregate over a fixed [StartTime, EndTime) interval.
type Bar struct {
	Code     string
	Interval time.Duration

	StartTime time.Time
	EndTime   time.Time

	Open  decimal.Decimal
	High  decimal.Decimal
	Low   decimal.Decimal
	Close decimal.Decimal

	Volume       int64
	Turnover     decimal.Decimal
	OpenInterest int64
}

// IsZero reports whether the bar is the uninitialized sentinel (never
// opened by a tick) and should not be emitted.
func (b Bar) IsZero() bool {
	return b.Open.IsZero()
}

// Fold merges a tick's price/volume/turnover/open-interest into the bar
// in place, updating high/low/close.
func (b *Bar) Fold(price decimal.Decimal, volume int64, turnover decimal.Decimal, openInterest int64) {
	if b.High.IsZero() || price.GreaterThan(b.High) {
		b.High = price
	}
	if b.Low.IsZero() || price.LessThan(b.Low) {
		b.Low = price
	}
	b.Close = price
	b.Volume += volume
	b.Turnover = b.Turnover.Add(turnover)
	b.OpenInterest = openInterest
}
