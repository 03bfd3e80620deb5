// Package bar implements the Second-Bar Generator (C3) and the Bar
// Aggregator (C4): the state machines that fold Ticks into fixed-width
// OHLCV Bars and multiplex per-code subscriptions across intervals.
package bar

import (
	"sync"
	"time"

	"github.com/yanun0323/decimal"

	"github.com/ktrader-tech/broker-facade/internal/schema"
	"github.com/ktrader-tech/broker-facade/internal/xerror"
)

// validSecondIntervals is the accepted-interval set for a SecondBarGenerator:
// the divisors of 60 greater than 1.
var validSecondIntervals = map[time.Duration]bool{
	2 * time.Second:  true,
	3 * time.Second:  true,
	5 * time.Second:  true,
	6 * time.Second:  true,
	10 * time.Second: true,
	15 * time.Second: true,
	20 * time.Second: true,
	30 * time.Second: true,
	60 * time.Second: true,
}

func isPreTrading(s schema.MarketStatus) bool {
	return s == schema.MarketStatusUnknown || s == schema.MarketStatusStopTrading || s == schema.MarketStatusClosed
}

func isEnteringTrading(s schema.MarketStatus) bool {
	switch s {
	case schema.MarketStatusAuctionOrdering, schema.MarketStatusAuctionMatched, schema.MarketStatusContinuousMatching:
		return true
	default:
		return false
	}
}

func isAuctionStatus(s schema.MarketStatus) bool {
	return s == schema.MarketStatusAuctionOrdering || s == schema.MarketStatusAuctionMatched
}

// alignStart floors t to the nearest interval boundary within its minute.
func alignStart(t time.Time, interval time.Duration) time.Time {
	minuteStart := t.Truncate(time.Minute)
	offset := t.Sub(minuteStart)
	n := offset / interval
	return minuteStart.Add(n * interval)
}

// SecondBarGenerator folds Ticks for a single (code, interval) pair into
// successive Bars, one at a time. It has no goroutine of its own besides
// the end-of-bar timer; Update must be called from a single caller (the
// owning Bar Aggregator serializes ticks per code).
type SecondBarGenerator struct {
	code     string
	interval time.Duration
	onBar    func(schema.Bar)

	mu               sync.Mutex
	currentBar       schema.Bar
	folded           bool
	marketStatus     schema.MarketStatus
	firstAuctionTick *schema.Tick
	generation       uint64
	timer            *time.Timer
}

// NewSecondBarGenerator creates a generator for code at interval. onBar is
// invoked synchronously, under the generator's lock, for every Bar the
// state machine decides to emit; it must not call back into the generator.
func NewSecondBarGenerator(code string, interval time.Duration, onBar func(schema.Bar)) (*SecondBarGenerator, error) {
	if !validSecondIntervals[interval] {
		return nil, xerror.ErrInvalidInterval
	}
	return &SecondBarGenerator{code: code, interval: interval, onBar: onBar}, nil
}

// Update ingests one tick for the generator's code.
func (g *SecondBarGenerator) Update(tick schema.Tick) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.marketStatus == schema.MarketStatusClosed {
		return
	}

	prevStatus := g.marketStatus
	if isPreTrading(prevStatus) && isEnteringTrading(tick.Status) {
		start := alignStart(tick.Time, g.interval)
		g.openBar(start, start.Add(g.interval), tick.LastPrice)
	}
	g.marketStatus = tick.Status

	if tick.Volume == 0 {
		return
	}

	if isAuctionStatus(tick.Status) {
		if g.firstAuctionTick == nil {
			t := tick
			g.firstAuctionTick = &t
		}
		return
	}

	if g.firstAuctionTick != nil && tick.Status == schema.MarketStatusContinuousMatching {
		auction := *g.firstAuctionTick
		g.firstAuctionTick = nil
		start := alignStart(tick.Time, g.interval)
		g.openBar(start, start.Add(g.interval), auction.LastPrice)
		g.foldTick(auction)
		g.foldTick(tick)
		return
	}

	g.applyTick(tick)
}

func (g *SecondBarGenerator) applyTick(tick schema.Tick) {
	if g.currentBar.StartTime.IsZero() {
		return
	}
	start, end := g.currentBar.StartTime, g.currentBar.EndTime

	if tick.Time.Before(end) && tick.Time.After(start) {
		g.foldTick(tick)
		return
	}

	if !tick.Time.Before(end) {
		grace := end.Add(time.Second)
		if tick.Time.Before(grace) {
			g.foldTick(tick)
			g.emit()
			g.openBar(end, end.Add(g.interval), tick.LastPrice)
			return
		}
		g.emit()
		newStart := alignStart(tick.Time, g.interval)
		g.openBar(newStart, newStart.Add(g.interval), tick.LastPrice)
		g.foldTick(tick)
	}
}

func (g *SecondBarGenerator) foldTick(tick schema.Tick) {
	g.currentBar.Fold(tick.LastPrice, tick.Volume, tick.Turnover, tick.OpenInterest)
	g.folded = true
}

// openBar replaces currentBar with a fresh one and rearms the end-of-bar
// timer; it does not emit the bar it replaces.
func (g *SecondBarGenerator) openBar(start, end time.Time, open decimal.Decimal) {
	g.currentBar = schema.Bar{Code: g.code, Interval: g.interval, StartTime: start, EndTime: end, Open: open}
	g.folded = false
	g.generation++
	g.armTimer()
}

// emit posts currentBar to onBar if it is not the uninitialized sentinel.
// It does not replace currentBar; callers immediately open the next one.
func (g *SecondBarGenerator) emit() {
	if g.currentBar.IsZero() {
		return
	}
	if g.onBar != nil {
		g.onBar(g.currentBar)
	}
}

func (g *SecondBarGenerator) armTimer() {
	if g.timer != nil {
		g.timer.Stop()
	}
	gen := g.generation
	delay := time.Until(g.currentBar.EndTime.Add(time.Second))
	if delay < 0 {
		delay = 0
	}
	g.timer = time.AfterFunc(delay, func() { g.onTimerFire(gen) })
}

// onTimerFire flushes currentBar if it has not already advanced past gen
// (a stale timer from an already-replaced bar is a silent no-op). A bar
// that was opened but never folded (no tick landed in its window) is
// carried forward unemitted rather than posted as a High=Low=Close=0
// bar next to a nonzero Open.
func (g *SecondBarGenerator) onTimerFire(gen uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gen != g.generation || g.currentBar.IsZero() {
		return
	}
	prevClose := g.currentBar.Close
	if prevClose.IsZero() {
		prevClose = g.currentBar.Open
	}
	start := g.currentBar.EndTime
	if g.folded {
		g.emit()
	}
	g.openBar(start, start.Add(g.interval), prevClose)
}

// Reset restores the generator's initial state for a new trading day.
func (g *SecondBarGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.currentBar = schema.Bar{}
	g.folded = false
	g.marketStatus = schema.MarketStatusUnknown
	g.firstAuctionTick = nil
	g.generation++
}

// Stop cancels the pending end-of-bar timer without altering bar state.
func (g *SecondBarGenerator) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		g.timer.Stop()
	}
}
