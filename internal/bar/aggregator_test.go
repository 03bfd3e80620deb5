package bar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ktrader-tech/broker-facade/internal/schema"
)

func minuteTick(t *testing.T, hhmmss string, price string, volume int64) schema.Tick {
	t.Helper()
	tm, err := time.Parse("15:04:05", hhmmss)
	require.NoError(t, err)
	return schema.Tick{
		Code:      "TEST",
		Time:      tm,
		LastPrice: mustDecimal(t, price),
		Volume:    volume,
		Status:    schema.MarketStatusContinuousMatching,
	}
}

// Composite interval subscriptions above a minute fold k=interval/60 minute
// Bars into one; this pins the boundary math for k=3.
func TestAggregatorFoldsThreeMinuteBarsIntoCompositeBar(t *testing.T) {
	var composites []schema.Bar
	a := NewAggregator(func(code string, interval time.Duration, bar schema.Bar) {
		if interval == 3*time.Minute {
			composites = append(composites, bar)
		}
	})

	require.NoError(t, a.Subscribe("TEST", 3*time.Minute))

	ticks := []schema.Tick{
		minuteTick(t, "10:00:05", "100", 1),
		minuteTick(t, "10:00:30", "110", 2),
		minuteTick(t, "10:01:00", "105", 1), // closes minute A, opens minute B
		minuteTick(t, "10:01:20", "120", 2),
		minuteTick(t, "10:01:45", "90", 3),
		minuteTick(t, "10:02:00", "95", 1), // closes minute B, opens minute C
		minuteTick(t, "10:02:10", "130", 1),
		minuteTick(t, "10:02:50", "80", 2),
		minuteTick(t, "10:03:00", "100", 1), // closes minute C
	}
	for _, tick := range ticks {
		a.UpdateTick(tick)
	}

	require.Len(t, composites, 1)
	bar := composites[0]

	start, _ := time.Parse("15:04:05", "10:00:00")
	end, _ := time.Parse("15:04:05", "10:03:00")
	require.True(t, bar.StartTime.Equal(start))
	require.True(t, bar.EndTime.Equal(end))

	require.True(t, bar.Open.Equal(mustDecimal(t, "100")), "open should be minute A's open")
	require.True(t, bar.Close.Equal(mustDecimal(t, "100")), "close should be minute C's close")
	require.True(t, bar.High.Equal(mustDecimal(t, "130")), "high should be the max across all three minutes")
	require.True(t, bar.Low.Equal(mustDecimal(t, "80")), "low should be the min across all three minutes")
	require.EqualValues(t, 14, bar.Volume, "volume should sum across all three minutes")
}

// An interval that is neither a divisor of 60 seconds nor a whole number
// of minutes (90s), and a non-positive interval (0), are both rejected.
func TestAggregatorRejectsIntervalNotDivisorOf60OrMultipleOfMinute(t *testing.T) {
	a := NewAggregator(nil)
	require.Error(t, a.Subscribe("TEST", 90*time.Second))
	require.Error(t, a.Subscribe("TEST", 0))
}

// Unsubscribing the last composite interval tears the implicit
// minute-generator down and clears the minute cache used to fold it.
func TestAggregatorUnsubscribeCompositeTearsDownMinuteGenerator(t *testing.T) {
	a := NewAggregator(func(string, time.Duration, schema.Bar) {})
	require.NoError(t, a.Subscribe("TEST", 3*time.Minute))
	a.UpdateTick(minuteTick(t, "10:00:05", "100", 1))

	a.Unsubscribe("TEST", 3*time.Minute)

	a.mu.Lock()
	_, hasGenerator := a.generators[subKey{"TEST", time.Minute}]
	_, hasCache := a.minuteCache["TEST"]
	a.mu.Unlock()

	require.False(t, hasGenerator)
	require.False(t, hasCache)
}
