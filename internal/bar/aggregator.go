package bar

import (
	"sync"
	"time"

	"github.com/ktrader-tech/broker-facade/internal/schema"
	"github.com/ktrader-tech/broker-facade/internal/xerror"
)

type subKey struct {
	code     string
	interval time.Duration
}

// Aggregator multiplexes per-code Bar subscriptions across intervals (C4).
// Intervals in the accepted sub-minute set are served directly by a
// SecondBarGenerator; intervals above a minute are served by folding a
// window of minute Bars produced by an implicitly-subscribed 60-second
// generator.
type Aggregator struct {
	mu sync.Mutex

	onBar func(code string, interval time.Duration, bar schema.Bar)

	generators         map[subKey]*SecondBarGenerator
	userSet            map[subKey]bool
	compositeIntervals map[string]map[time.Duration]bool
	minuteCache        map[string][]schema.Bar
	maxWindow          map[string]int
}

// NewAggregator creates an aggregator that delivers every emitted Bar
// (direct or composite) to onBar. onBar is invoked synchronously and must
// not call back into the aggregator.
func NewAggregator(onBar func(code string, interval time.Duration, bar schema.Bar)) *Aggregator {
	return &Aggregator{
		onBar:              onBar,
		generators:         make(map[subKey]*SecondBarGenerator),
		userSet:            make(map[subKey]bool),
		compositeIntervals: make(map[string]map[time.Duration]bool),
		minuteCache:        make(map[string][]schema.Bar),
		maxWindow:          make(map[string]int),
	}
}

// Subscribe registers interest in Bars for code at interval.
func (a *Aggregator) Subscribe(code string, interval time.Duration) error {
	if interval <= 0 {
		return xerror.ErrInvalidInterval
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	key := subKey{code, interval}

	if interval <= time.Minute {
		if !validSecondIntervals[interval] {
			return xerror.ErrInvalidInterval
		}
		a.userSet[key] = true
		a.ensureGeneratorLocked(code, interval)
		return nil
	}

	if interval%time.Minute != 0 {
		return xerror.ErrInvalidInterval
	}

	a.userSet[key] = true
	if a.compositeIntervals[code] == nil {
		a.compositeIntervals[code] = make(map[time.Duration]bool)
	}
	a.compositeIntervals[code][interval] = true
	a.ensureGeneratorLocked(code, time.Minute)

	k := int(interval / time.Minute)
	if k > a.maxWindow[code] {
		a.maxWindow[code] = k
	}
	return nil
}

// Unsubscribe removes code/interval from the user set and tears down any
// generator no longer needed by a remaining user subscription (direct or
// implicit via a composite interval).
func (a *Aggregator) Unsubscribe(code string, interval time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.userSet, subKey{code, interval})

	if interval <= time.Minute {
		if !a.neededLocked(code, interval) {
			a.removeGeneratorLocked(code, interval)
		}
		return
	}

	if set := a.compositeIntervals[code]; set != nil {
		delete(set, interval)
		if len(set) == 0 {
			delete(a.compositeIntervals, code)
		}
	}
	a.recomputeMaxWindowLocked(code)
	if !a.neededLocked(code, time.Minute) {
		a.removeGeneratorLocked(code, time.Minute)
	}
}

func (a *Aggregator) neededLocked(code string, interval time.Duration) bool {
	if interval == time.Minute {
		if a.userSet[subKey{code, time.Minute}] {
			return true
		}
		return len(a.compositeIntervals[code]) > 0
	}
	return a.userSet[subKey{code, interval}]
}

func (a *Aggregator) recomputeMaxWindowLocked(code string) {
	max := 0
	for interval := range a.compositeIntervals[code] {
		if k := int(interval / time.Minute); k > max {
			max = k
		}
	}
	if max == 0 {
		delete(a.maxWindow, code)
		delete(a.minuteCache, code)
		return
	}
	a.maxWindow[code] = max
}

func (a *Aggregator) ensureGeneratorLocked(code string, interval time.Duration) *SecondBarGenerator {
	key := subKey{code, interval}
	if g, ok := a.generators[key]; ok {
		return g
	}
	g, _ := NewSecondBarGenerator(code, interval, func(bar schema.Bar) {
		a.handleGeneratedBar(code, interval, bar)
	})
	a.generators[key] = g
	return g
}

func (a *Aggregator) removeGeneratorLocked(code string, interval time.Duration) {
	key := subKey{code, interval}
	if g, ok := a.generators[key]; ok {
		g.Stop()
		delete(a.generators, key)
	}
}

// UpdateTick routes tick to every Second-Bar Generator subscribed for its
// code. Generators are called outside the aggregator's lock so that their
// own onBar callbacks may safely re-lock it.
func (a *Aggregator) UpdateTick(tick schema.Tick) {
	a.mu.Lock()
	gens := make([]*SecondBarGenerator, 0, len(a.generators))
	for key, g := range a.generators {
		if key.code == tick.Code {
			gens = append(gens, g)
		}
	}
	a.mu.Unlock()

	for _, g := range gens {
		g.Update(tick)
	}
}

func (a *Aggregator) handleGeneratedBar(code string, interval time.Duration, bar schema.Bar) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.userSet[subKey{code, interval}] {
		a.deliverLocked(code, interval, bar)
	}
	if interval == time.Minute {
		a.appendMinuteBarLocked(code, bar)
	}
}

func (a *Aggregator) appendMinuteBarLocked(code string, bar schema.Bar) {
	cache := append(a.minuteCache[code], bar)

	for interval := range a.compositeIntervals[code] {
		k := int(interval / time.Minute)
		if k <= 0 || len(cache)%k != 0 {
			continue
		}
		window := cache[len(cache)-k:]
		a.deliverLocked(code, interval, buildComposite(code, interval, window))
	}

	if max := a.maxWindow[code]; max > 0 && len(cache) > max {
		trimmed := make([]schema.Bar, max)
		copy(trimmed, cache[len(cache)-max:])
		cache = trimmed
	}
	a.minuteCache[code] = cache
}

func (a *Aggregator) deliverLocked(code string, interval time.Duration, bar schema.Bar) {
	if a.onBar != nil {
		a.onBar(code, interval, bar)
	}
}

// buildComposite folds a contiguous run of minute Bars into a single Bar
// spanning them.
func buildComposite(code string, interval time.Duration, minutes []schema.Bar) schema.Bar {
	first, last := minutes[0], minutes[len(minutes)-1]
	out := schema.Bar{
		Code:      code,
		Interval:  interval,
		StartTime: first.StartTime,
		EndTime:   last.EndTime,
		Open:      first.Open,
		Close:     last.Close,
		High:      first.High,
		Low:       first.Low,
	}
	for _, m := range minutes {
		if m.High.GreaterThan(out.High) {
			out.High = m.High
		}
		if out.Low.IsZero() || (!m.Low.IsZero() && m.Low.LessThan(out.Low)) {
			out.Low = m.Low
		}
		out.Volume += m.Volume
		out.Turnover = out.Turnover.Add(m.Turnover)
	}
	out.OpenInterest = last.OpenInterest
	return out
}

// Reset restores every underlying generator's state and clears minute
// caches for a new trading day; subscriptions are preserved.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	gens := make([]*SecondBarGenerator, 0, len(a.generators))
	for _, g := range a.generators {
		gens = append(gens, g)
	}
	a.minuteCache = make(map[string][]schema.Bar)
	a.mu.Unlock()

	for _, g := range gens {
		g.Reset()
	}
}

// Release cancels every generator's timer and clears all subscriptions.
func (a *Aggregator) Release() {
	a.mu.Lock()
	gens := make([]*SecondBarGenerator, 0, len(a.generators))
	for _, g := range a.generators {
		gens = append(gens, g)
	}
	a.generators = make(map[subKey]*SecondBarGenerator)
	a.userSet = make(map[subKey]bool)
	a.compositeIntervals = make(map[string]map[time.Duration]bool)
	a.minuteCache = make(map[string][]schema.Bar)
	a.maxWindow = make(map[string]int)
	a.mu.Unlock()

	for _, g := range gens {
		g.Stop()
	}
}
