package sep

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yanun0323/decimal"

	"github.com/ktrader-tech/broker-facade/internal/bus"
	"github.com/ktrader-tech/broker-facade/internal/datamgr"
	"github.com/ktrader-tech/broker-facade/internal/schema"
)

func newTestOverlay() *Overlay {
	return &Overlay{
		account:           "PARENT-sub",
		bus:               bus.New(),
		positions:         make(map[positionKey]*schema.Position),
		positionDetails:   make(map[positionKey]*schema.PositionDetails),
		todayOrders:       make(map[string]*schema.Order),
		todayTrades:       make(map[string]*schema.Trade),
		tickSubscriptions: make(map[string]bool),
		securityInfos:     make(map[string]schema.Security),
		lastTicks:         make(map[string]schema.Tick),
		dm:                noopDataManager{},
		taskCtx:           context.Background(),
	}
}

// noopDataManager satisfies datamgr.DataManager with no-op persistence,
// for tests that only care about in-memory overlay state.
type noopDataManager struct{}

func (noopDataManager) SaveAssets(context.Context, schema.Assets) error { return nil }
func (noopDataManager) QueryAssets(context.Context, string, string) (*schema.Assets, error) {
	return nil, nil
}
func (noopDataManager) DeleteAssets(context.Context, string, string) (int, error) { return 0, nil }

func (noopDataManager) SavePosition(context.Context, schema.Position) error { return nil }
func (noopDataManager) QueryPositions(context.Context, datamgr.PositionFilter) ([]schema.Position, error) {
	return nil, nil
}
func (noopDataManager) DeletePositions(context.Context, datamgr.PositionFilter) (int, error) {
	return 0, nil
}

func (noopDataManager) SavePositionDetail(context.Context, schema.PositionDetail) error { return nil }
func (noopDataManager) QueryPositionDetails(context.Context, datamgr.PositionDetailFilter) ([]schema.PositionDetail, error) {
	return nil, nil
}
func (noopDataManager) DeletePositionDetails(context.Context, datamgr.PositionDetailFilter) (int, error) {
	return 0, nil
}

func (noopDataManager) SaveOrder(context.Context, schema.Order) error { return nil }
func (noopDataManager) QueryOrder(context.Context, string) (*schema.Order, error) { return nil, nil }
func (noopDataManager) QueryOrders(context.Context, datamgr.OrderFilter) ([]schema.Order, error) {
	return nil, nil
}
func (noopDataManager) DeleteOrders(context.Context, datamgr.OrderFilter) (int, error) { return 0, nil }

func (noopDataManager) SaveTrade(context.Context, schema.Trade) error { return nil }
func (noopDataManager) QueryTrade(context.Context, string) (*schema.Trade, error) { return nil, nil }
func (noopDataManager) QueryTrades(context.Context, datamgr.TradeFilter) ([]schema.Trade, error) {
	return nil, nil
}
func (noopDataManager) DeleteTrades(context.Context, datamgr.TradeFilter) (int, error) { return 0, nil }

func (noopDataManager) SaveTradingDay(context.Context, string, string) error { return nil }
func (noopDataManager) QueryTradingDay(context.Context, string) (string, error) { return "", nil }

func (noopDataManager) QueryPropertyOrDefault(_ context.Context, _, _, defaultValue string) (string, error) {
	return defaultValue, nil
}
func (noopDataManager) QueryPropertyOrPut(_ context.Context, _, _, putValue string) (string, error) {
	return putValue, nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// TestApplyTradeLocked_CloseByPriceSelection covers the literal
// close-lot-selection scenario: a LONG position with lots at 100/110/120
// (5 each) closed 7 shares by a SHORT order carrying an explicit
// closePositionPrice of 115. The nearest lot to 115 is a tie between 110
// and 120 (distance 5 each); the tie resolves to the lower price, so 110
// is fully consumed first, then 2 shares come off 120.
func TestApplyTradeLocked_CloseByPriceSelection(t *testing.T) {
	o := newTestOverlay()
	code := "X"

	details := o.positionDetailsLocked(code, schema.DirectionLong)
	details.Upsert(dec("100"), 5, 0, time.Time{})
	details.Upsert(dec("110"), 5, 0, time.Time{})
	details.Upsert(dec("120"), 5, 0, time.Time{})

	pos := o.positionLocked(code, schema.DirectionLong)
	pos.Volume = 15
	pos.OpenCost = details.OpenCost(decimal.NewFromInt(1))

	target := dec("115")
	order := schema.Order{
		OrderID:             "o1",
		Code:                code,
		Direction:           schema.DirectionShort,
		Offset:              schema.OffsetClose,
		ClosePositionPrice:  &target,
	}
	trade := schema.Trade{
		TradeID: "t1",
		OrderID: "o1",
		Code:    code,
		Price:   dec("112"),
		Volume:  7,
	}

	o.applyTradeLocked(order, trade)

	lots := details.Lots()
	require.Len(t, lots, 2)
	require.True(t, lots[0].Price.Equal(dec("100")))
	require.EqualValues(t, 5, lots[0].Volume)
	require.True(t, lots[1].Price.Equal(dec("120")))
	require.EqualValues(t, 3, lots[1].Volume)

	require.True(t, o.assets.TotalClosePnl.Equal(dec("-6")))
	require.EqualValues(t, 8, pos.Volume)
}

// TestSelectCloseLots_NoExplicitTarget_LongOrderSweepsAscending covers the
// no-explicit-closePositionPrice fallback: a LONG order (closing a short
// position) sweeps from the lowest price upward.
func TestSelectCloseLots_NoExplicitTarget_LongOrderSweepsAscending(t *testing.T) {
	o := newTestOverlay()
	details := schema.NewPositionDetails("acct", "X", schema.DirectionShort)
	details.Upsert(dec("100"), 5, 5, time.Time{})
	details.Upsert(dec("110"), 5, 5, time.Time{})

	order := &schema.Order{Direction: schema.DirectionLong, Offset: schema.OffsetClose}
	fills := o.selectCloseLots(details, order, 7)

	require.Len(t, fills, 2)
	require.True(t, fills[0].price.Equal(dec("100")))
	require.EqualValues(t, 5, fills[0].volume)
	require.True(t, fills[1].price.Equal(dec("110")))
	require.EqualValues(t, 2, fills[1].volume)
}

// TestSelectCloseLots_NoExplicitTarget_ShortOrderSweepsDescending mirrors
// the ascending case for a SHORT order closing a long position.
func TestSelectCloseLots_NoExplicitTarget_ShortOrderSweepsDescending(t *testing.T) {
	o := newTestOverlay()
	details := schema.NewPositionDetails("acct", "X", schema.DirectionLong)
	details.Upsert(dec("100"), 5, 5, time.Time{})
	details.Upsert(dec("110"), 5, 5, time.Time{})

	order := &schema.Order{Direction: schema.DirectionShort, Offset: schema.OffsetClose}
	fills := o.selectCloseLots(details, order, 7)

	require.Len(t, fills, 2)
	require.True(t, fills[0].price.Equal(dec("110")))
	require.EqualValues(t, 5, fills[0].volume)
	require.True(t, fills[1].price.Equal(dec("100")))
	require.EqualValues(t, 2, fills[1].volume)
}

// TestDisable_RejectsNewOrders covers the kill-switch: once Disable is
// called, InsertOrder must refuse before it ever reaches the parent.
func TestDisable_RejectsNewOrders(t *testing.T) {
	o := newTestOverlay()
	o.dm = noopDataManager{}
	o.connected = true
	o.assets = schema.Assets{AccountID: o.account, InitialCash: dec("5000")}
	o.assets.Recompute()
	o.taskCtx = context.Background()

	o.Disable()

	_, err := o.InsertOrder(context.Background(), "X", dec("100"), 1, schema.DirectionLong, schema.OffsetOpen, schema.OrderTypeLimit, 0, nil)
	require.Error(t, err)
}

// TestMaybeRollover covers the trading-day rollover scenario: frozen
// order cash and today's commission reset to zero, available cash
// absorbs the freed freeze, and the trading day updates.
func TestMaybeRollover(t *testing.T) {
	o := newTestOverlay()
	o.dm = noopDataManager{}
	o.tradingDay = "20260805"
	o.assets = schema.Assets{
		AccountID:       o.account,
		TradingDay:      "20260805",
		InitialCash:     dec("5000"),
		FrozenByOrder:   dec("1000"),
		TodayCommission: dec("50"),
	}
	o.assets.Recompute()
	require.True(t, o.assets.Available.Equal(dec("4000")))

	o.taskCtx = context.Background()

	o.maybeRollover(o.taskCtx, "20260806")

	require.Equal(t, "20260806", o.tradingDay)
	require.True(t, o.assets.FrozenByOrder.IsZero())
	require.True(t, o.assets.TodayCommission.IsZero())
	require.True(t, o.assets.Available.Equal(dec("5000")))
}
