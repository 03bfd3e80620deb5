package bar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yanun0323/decimal"

	"github.com/ktrader-tech/broker-facade/internal/schema"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func tickAt(t *testing.T, hhmmss string, price string, volume int64, status schema.MarketStatus) schema.Tick {
	t.Helper()
	tm, err := time.Parse("15:04:05", hhmmss)
	require.NoError(t, err)
	return schema.Tick{
		Code:      "TEST",
		Time:      tm,
		LastPrice: mustDecimal(t, price),
		Volume:    volume,
		Status:    status,
	}
}

func TestSecondBarGeneratorRejectsInvalidInterval(t *testing.T) {
	_, err := NewSecondBarGenerator("TEST", 4*time.Second, nil)
	require.Error(t, err)
}

// S1: bar alignment across a boundary with no auction involved.
func TestSecondBarGeneratorAlignsBarsOnTickTime(t *testing.T) {
	var bars []schema.Bar
	g, err := NewSecondBarGenerator("TEST", 10*time.Second, func(b schema.Bar) { bars = append(bars, b) })
	require.NoError(t, err)

	g.Update(tickAt(t, "10:00:02", "100", 1, schema.MarketStatusContinuousMatching))
	g.Update(tickAt(t, "10:00:11", "101", 2, schema.MarketStatusContinuousMatching))

	require.Len(t, bars, 1)
	require.True(t, bars[0].Open.Equal(mustDecimal(t, "100")))
	require.True(t, bars[0].High.Equal(mustDecimal(t, "100")))
	require.True(t, bars[0].Close.Equal(mustDecimal(t, "100")))
	require.EqualValues(t, 1, bars[0].Volume)

	start, _ := time.Parse("15:04:05", "10:00:00")
	require.True(t, bars[0].StartTime.Equal(start))
}

// S2: an auction match tick is folded as the opening price of the first
// continuous-matching Bar.
func TestSecondBarGeneratorMergesAuctionIntoFirstContinuousBar(t *testing.T) {
	var bars []schema.Bar
	g, err := NewSecondBarGenerator("TEST", 10*time.Second, func(b schema.Bar) { bars = append(bars, b) })
	require.NoError(t, err)

	g.Update(tickAt(t, "09:14:59", "3000", 10, schema.MarketStatusAuctionMatched))
	g.Update(tickAt(t, "09:15:00", "3001", 5, schema.MarketStatusContinuousMatching))
	g.Update(tickAt(t, "09:15:11", "3002", 1, schema.MarketStatusContinuousMatching))

	require.Len(t, bars, 1)
	require.True(t, bars[0].Open.Equal(mustDecimal(t, "3000")))
	require.EqualValues(t, 15, bars[0].Volume)
	start, _ := time.Parse("15:04:05", "09:15:00")
	require.True(t, bars[0].StartTime.Equal(start))
}

func TestSecondBarGeneratorSuppressesZeroOpenBars(t *testing.T) {
	var bars []schema.Bar
	g, err := NewSecondBarGenerator("TEST", 10*time.Second, func(b schema.Bar) { bars = append(bars, b) })
	require.NoError(t, err)

	// Pure status tick with no volume never opens or folds a bar.
	g.Update(tickAt(t, "10:00:00", "0", 0, schema.MarketStatusUnknown))
	require.Empty(t, bars)
}

func TestSecondBarGeneratorGraceTickFoldsIntoPriorBar(t *testing.T) {
	var bars []schema.Bar
	g, err := NewSecondBarGenerator("TEST", 10*time.Second, func(b schema.Bar) { bars = append(bars, b) })
	require.NoError(t, err)

	g.Update(tickAt(t, "10:00:02", "100", 1, schema.MarketStatusContinuousMatching))
	// 10:00:10.5 is within the 1s grace window after endTime=10:00:10.
	grace := schema.Tick{
		Code: "TEST", Time: mustTime(t, "10:00:10.500"),
		LastPrice: mustDecimal(t, "105"), Volume: 3, Status: schema.MarketStatusContinuousMatching,
	}
	g.Update(grace)

	require.Len(t, bars, 1)
	require.EqualValues(t, 4, bars[0].Volume)
	require.True(t, bars[0].Close.Equal(mustDecimal(t, "105")))
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse("15:04:05.000", s)
	require.NoError(t, err)
	return tm
}

func TestSecondBarGeneratorResetClearsState(t *testing.T) {
	var bars []schema.Bar
	g, err := NewSecondBarGenerator("TEST", 10*time.Second, func(b schema.Bar) { bars = append(bars, b) })
	require.NoError(t, err)

	g.Update(tickAt(t, "10:00:02", "100", 1, schema.MarketStatusContinuousMatching))
	g.Reset()
	require.Equal(t, schema.MarketStatusUnknown, g.marketStatus)
	require.True(t, g.currentBar.IsZero())
}
