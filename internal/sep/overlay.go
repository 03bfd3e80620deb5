// Package sep implements the SEP Overlay (C6): a virtual sub-account
// layered on top of any facade.BrokerAPI (its "parent"), tracking its own
// assets, positions, and orders while every fill still ultimately clears
// through the parent's own order flow.
package sep

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/ktrader-tech/broker-facade/internal/bar"
	"github.com/ktrader-tech/broker-facade/internal/bus"
	"github.com/ktrader-tech/broker-facade/internal/datamgr"
	"github.com/ktrader-tech/broker-facade/internal/facade"
	"github.com/ktrader-tech/broker-facade/internal/obs"
	"github.com/ktrader-tech/broker-facade/internal/schema"
	"github.com/ktrader-tech/broker-facade/internal/xerror"
)

// forbiddenSubAccountChars are the characters a sub-account id may not
// contain: '-' collides with the "-SEP"/"-<sepAccount>" identity
// separators, '_' and whitespace are reserved for the caller's own
// namespacing.
const forbiddenSubAccountChars = "-_ \t\n\r"

// ParentAPI is what a SEP Overlay needs from its parent: the full broker
// capability surface plus the ability to subscribe to the parent's event
// bus. A SEP Overlay satisfies ParentAPI itself, so overlays nest.
type ParentAPI interface {
	facade.BrokerAPI
	facade.EventSource
}

type positionKey struct {
	code      string
	direction schema.Direction
}

// Overlay is a virtual sub-account layered on a ParentAPI.
type Overlay struct {
	parent     ParentAPI
	dm         datamgr.DataManager
	sepAccount string
	isAsParent bool

	name     string
	account  string
	sourceID string

	bus    *bus.Bus
	barAgg *bar.Aggregator

	mu         sync.Mutex
	disabled   bool
	connected  bool
	tradingDay string

	assets            schema.Assets
	positions         map[positionKey]*schema.Position
	positionDetails   map[positionKey]*schema.PositionDetails
	todayOrders       map[string]*schema.Order
	todayTrades       map[string]*schema.Trade
	tickSubscriptions map[string]bool
	securityInfos     map[string]schema.Security
	lastTicks         map[string]schema.Tick

	lastTickUpdateTime map[string]time.Time
	assetsRefreshAt    time.Time

	taskCtx    context.Context
	cancelTask context.CancelFunc
	tasks      sync.WaitGroup

	metrics *obs.Metrics
}

var _ ParentAPI = (*Overlay)(nil)

// SetMetrics attaches the counters InsertOrder and the assets-refresh
// debounce report into. Nil disables reporting.
func (o *Overlay) SetMetrics(metrics *obs.Metrics) {
	o.mu.Lock()
	o.metrics = metrics
	o.mu.Unlock()
}

// NewOverlay constructs a SEP Overlay named parent.Name()+"-SEP", account
// parent.Account()+"-"+sepAccount. sepAccount must not contain '-', '_',
// or whitespace.
func NewOverlay(parent ParentAPI, sepAccount string, dm datamgr.DataManager, isAsParent bool) (*Overlay, error) {
	if strings.ContainsAny(sepAccount, forbiddenSubAccountChars) {
		return nil, errors.Wrapf(xerror.ErrInvalidSubAccountName, "sub-account: %q", sepAccount)
	}

	o := &Overlay{
		parent:             parent,
		dm:                 dm,
		sepAccount:         sepAccount,
		isAsParent:         isAsParent,
		name:               parent.Name() + "-SEP",
		account:            parent.Account() + "-" + sepAccount,
		bus:                bus.New(),
		positions:          make(map[positionKey]*schema.Position),
		positionDetails:    make(map[positionKey]*schema.PositionDetails),
		todayOrders:        make(map[string]*schema.Order),
		todayTrades:        make(map[string]*schema.Trade),
		tickSubscriptions:  make(map[string]bool),
		securityInfos:      make(map[string]schema.Security),
		lastTicks:          make(map[string]schema.Tick),
		lastTickUpdateTime: make(map[string]time.Time),
	}
	o.sourceID = o.account
	o.barAgg = bar.NewAggregator(o.handleBar)
	return o, nil
}

func (o *Overlay) Name() string    { return o.name }
func (o *Overlay) Account() string { return o.account }

// Subscribe and RemoveSubscribersByTag satisfy facade.EventSource so a
// nested overlay can treat this one as its parent.
func (o *Overlay) Subscribe(types []schema.EventType, tag string, handler func(schema.BrokerEvent)) {
	o.bus.Subscribe(types, tag, handler)
}

func (o *Overlay) RemoveSubscribersByTag(tag string) {
	o.bus.RemoveSubscribersByTag(tag)
}

// Disable marks the overlay unable to accept new orders; existing state
// is left untouched.
func (o *Overlay) Disable() {
	o.mu.Lock()
	o.disabled = true
	o.mu.Unlock()
}

func (o *Overlay) handleBar(code string, interval time.Duration, b schema.Bar) {
	o.bus.Post(schema.BrokerEvent{Type: schema.EventBar, SourceID: o.sourceID, Data: b})
	_ = code
	_ = interval
}

// Connect restores persisted state, subscribes to every event type on the
// parent's bus, and (unless acting as the top of the chain) probes the
// parent's trading day.
func (o *Overlay) Connect(ctx context.Context, extras map[string]string) error {
	o.taskCtx, o.cancelTask = context.WithCancel(context.Background())

	if err := o.restore(ctx); err != nil {
		return errors.Wrap(err, "sep: restore")
	}

	o.parent.Subscribe(facade.AllEventTypes, o.sourceID, o.onParentEvent)

	if o.isAsParent {
		if err := o.parent.Connect(ctx, extras); err != nil {
			return errors.Wrap(err, "sep: parent connect")
		}
	} else {
		o.mu.Lock()
		codes := make([]string, 0, len(o.positions))
		for k := range o.positions {
			codes = append(codes, k.code)
		}
		o.mu.Unlock()
		if len(codes) > 0 {
			if err := o.parent.SubscribeTicks(ctx, codes, nil); err != nil {
				logs.Errorf("sep: subscribe restored position ticks account=%s err=%+v", o.account, err)
			} else {
				o.mu.Lock()
				for _, c := range codes {
					o.tickSubscriptions[c] = true
				}
				o.mu.Unlock()
			}
		}
		if day, err := o.parent.TradingDay(ctx); err == nil && day != "" {
			o.maybeRollover(ctx, day)
		}
	}

	o.mu.Lock()
	o.connected = true
	o.mu.Unlock()
	return nil
}

// restore loads the last persisted trading day, assets, positions,
// position details, and today's orders/trades from the data manager.
func (o *Overlay) restore(ctx context.Context) error {
	day, err := o.dm.QueryTradingDay(ctx, o.account)
	if err != nil {
		return err
	}

	assets := schema.Assets{AccountID: o.account, TradingDay: day}
	if day != "" {
		if a, err := o.dm.QueryAssets(ctx, o.account, day); err == nil && a != nil {
			assets = *a
		}
	}

	positions, err := o.dm.QueryPositions(ctx, datamgr.PositionFilter{AccountID: o.account, TradingDay: day})
	if err != nil {
		return err
	}
	details, err := o.dm.QueryPositionDetails(ctx, datamgr.PositionDetailFilter{AccountID: o.account})
	if err != nil {
		return err
	}
	orders, err := o.dm.QueryOrders(ctx, datamgr.OrderFilter{AccountID: o.account, TradingDay: day})
	if err != nil {
		return err
	}
	trades, err := o.dm.QueryTrades(ctx, datamgr.TradeFilter{AccountID: o.account, TradingDay: day})
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.tradingDay = day
	o.assets = assets
	for i := range positions {
		p := positions[i]
		o.positions[positionKey{p.Code, p.Direction}] = &p
	}
	for _, d := range details {
		if d.Volume <= 0 {
			continue
		}
		key := positionKey{d.Code, d.Direction}
		set := o.positionDetails[key]
		if set == nil {
			set = schema.NewPositionDetails(o.account, d.Code, d.Direction)
			o.positionDetails[key] = set
		}
		set.Upsert(d.Price, d.Volume, d.TodayVolume, d.UpdateTime)
	}
	for i := range orders {
		ord := orders[i]
		o.todayOrders[ord.OrderID] = &ord
	}
	for i := range trades {
		tr := trades[i]
		o.todayTrades[tr.TradeID] = &tr
	}
	return nil
}

func (o *Overlay) positionLocked(code string, direction schema.Direction) *schema.Position {
	key := positionKey{code, direction}
	p, ok := o.positions[key]
	if !ok {
		p = &schema.Position{AccountID: o.account, Code: code, Direction: direction}
		o.positions[key] = p
	}
	return p
}

func (o *Overlay) positionDetailsLocked(code string, direction schema.Direction) *schema.PositionDetails {
	key := positionKey{code, direction}
	d, ok := o.positionDetails[key]
	if !ok {
		d = schema.NewPositionDetails(o.account, code, direction)
		o.positionDetails[key] = d
	}
	return d
}

func (o *Overlay) multiplierLocked(code string) decimal.Decimal {
	if sec, ok := o.securityInfos[code]; ok && !sec.Multiplier.IsZero() {
		return sec.Multiplier
	}
	return decimal.NewFromInt(1)
}

// Close unsubscribes from the parent, cancels the background task pool,
// releases the bar aggregator, releases the overlay's own bus, and (if
// acting as the chain's top) closes the parent too.
func (o *Overlay) Close(ctx context.Context) error {
	o.parent.RemoveSubscribersByTag(o.sourceID)
	if o.cancelTask != nil {
		o.cancelTask()
	}
	o.tasks.Wait()
	o.barAgg.Release()
	o.bus.Release()

	o.mu.Lock()
	o.connected = false
	o.mu.Unlock()

	if o.isAsParent {
		return o.parent.Close(ctx)
	}
	return nil
}

func (o *Overlay) TradingDay(_ context.Context) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tradingDay, nil
}

// spawn launches f on the overlay's background task pool, tracked so
// Close can wait for in-flight work to finish.
func (o *Overlay) spawn(f func(ctx context.Context)) {
	o.tasks.Add(1)
	go func() {
		defer o.tasks.Done()
		f(o.taskCtx)
	}()
}
