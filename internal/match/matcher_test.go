package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yanun0323/decimal"

	"github.com/ktrader-tech/broker-facade/internal/bus"
	"github.com/ktrader-tech/broker-facade/internal/schema"
)

func d(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	v, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return v
}

func askBook(t *testing.T, prices []string, volumes []int64) []schema.PriceLevel {
	t.Helper()
	levels := make([]schema.PriceLevel, len(prices))
	for i, p := range prices {
		levels[i] = schema.PriceLevel{Price: d(t, p), Volume: volumes[i]}
	}
	return levels
}

func waitFor(t *testing.T, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	require.Fail(t, "condition never became true")
}

// S3: limit order fills across two book levels, spillover never triggers
// because the third level violates the order's own price limit.
func TestMatcherLimitFillsAcrossBookLevels(t *testing.T) {
	b := bus.New()
	m := NewMatcher("acct", "acct", nil, b)

	tick := schema.Tick{
		Code: "X", Status: schema.MarketStatusContinuousMatching,
		Asks: askBook(t, []string{"10.1", "10.3", "10.6"}, []int64{2, 3, 4}),
	}
	m.UpdateTick(tick)

	order := m.InsertOrder("X", d(t, "10.5"), 7, schema.DirectionLong, schema.OffsetOpen, schema.OrderTypeLimit, 0, nil, nil)
	require.Equal(t, schema.OrderStatusAccepted, order.Status)

	waitFor(t, func() bool {
		got, ok := m.todayOrders[order.OrderID]
		return ok && got.Status == schema.OrderStatusPartiallyFilled
	})

	m.mu.Lock()
	final := m.todayOrders[order.OrderID]
	require.EqualValues(t, 5, final.FilledVolume)
	require.Equal(t, schema.OrderStatusPartiallyFilled, final.Status)
	m.mu.Unlock()
}

// S4: FOK order whose dry run cannot reach the requested volume is
// canceled with zero trades.
func TestMatcherFOKRejectsWhenUnfillable(t *testing.T) {
	b := bus.New()
	m := NewMatcher("acct", "acct", nil, b)

	tick := schema.Tick{
		Code: "X", Status: schema.MarketStatusContinuousMatching,
		Asks: askBook(t, []string{"10.1", "10.3", "10.6"}, []int64{2, 3, 4}),
	}
	m.UpdateTick(tick)

	order := m.InsertOrder("X", d(t, "10.2"), 5, schema.DirectionLong, schema.OffsetOpen, schema.OrderTypeFOK, 0, nil, nil)
	require.Equal(t, schema.OrderStatusAccepted, order.Status)

	waitFor(t, func() bool {
		got, ok := m.todayOrders[order.OrderID]
		return ok && got.Status == schema.OrderStatusCanceled
	})

	m.mu.Lock()
	final := m.todayOrders[order.OrderID]
	require.EqualValues(t, 0, final.FilledVolume)
	m.mu.Unlock()
}

func TestMatcherInsertOrderWithoutLastTickErrors(t *testing.T) {
	b := bus.New()
	m := NewMatcher("acct", "acct", nil, b)

	order := m.InsertOrder("UNSEEN", d(t, "1"), 1, schema.DirectionLong, schema.OffsetOpen, schema.OrderTypeLimit, 0, nil, nil)
	require.Equal(t, schema.OrderStatusError, order.Status)
	require.Equal(t, "no last tick", order.StatusMsg)
}

func TestMatcherCancelUnknownOrderErrors(t *testing.T) {
	b := bus.New()
	m := NewMatcher("acct", "acct", nil, b)
	require.Error(t, m.CancelOrder("nope"))
}

func TestMatcherCancelTerminalOrderPostsCancelFailed(t *testing.T) {
	b := bus.New()
	var failed int
	b.Subscribe([]schema.EventType{schema.EventCancelFailed}, "test", func(e schema.BrokerEvent) { failed++ })
	m := NewMatcher("acct", "acct", nil, b)

	tick := schema.Tick{Code: "X", Status: schema.MarketStatusContinuousMatching, Asks: askBook(t, []string{"10"}, []int64{1})}
	m.UpdateTick(tick)
	order := m.InsertOrder("X", d(t, "10"), 1, schema.DirectionLong, schema.OffsetOpen, schema.OrderTypeLimit, 0, nil, nil)

	waitFor(t, func() bool {
		got, ok := m.todayOrders[order.OrderID]
		return ok && got.Status == schema.OrderStatusFilled
	})

	require.NoError(t, m.CancelOrder(order.OrderID))
	require.Equal(t, 1, failed)
}

func TestMatcherResetClearsState(t *testing.T) {
	b := bus.New()
	m := NewMatcher("acct", "acct", nil, b)
	tick := schema.Tick{Code: "X", Status: schema.MarketStatusContinuousMatching, Asks: askBook(t, []string{"10"}, []int64{1})}
	m.UpdateTick(tick)
	m.InsertOrder("X", d(t, "10"), 1, schema.DirectionLong, schema.OffsetOpen, schema.OrderTypeLimit, 0, nil, nil)

	m.Reset()
	require.Empty(t, m.todayOrders)
	require.Empty(t, m.lastTicks)
}
