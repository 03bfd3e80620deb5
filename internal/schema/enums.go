// Package schema defines the value types shared by every component of the
// broker facade: ticks, bars, orders, trades, positions, assets, and the
// events that carry them across the event bus.
package schema

// MarketStatus is the trading state of an instrument at the instant a Tick
// was observed.
type MarketStatus uint8

const (
	MarketStatusUnknown MarketStatus = iota
	MarketStatusAuctionOrdering
	MarketStatusAuctionMatched
	MarketStatusContinuousMatching
	MarketStatusStopTrading
	MarketStatusClosed
)

func (s MarketStatus) String() string {
	switch s {
	case MarketStatusAuctionOrdering:
		return "AUCTION_ORDERING"
	case MarketStatusAuctionMatched:
		return "AUCTION_MATCHED"
	case MarketStatusContinuousMatching:
		return "CONTINUOUS_MATCHING"
	case MarketStatusStopTrading:
		return "STOP_TRADING"
	case MarketStatusClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// IsTrading reports whether orders may match against this status.
func (s MarketStatus) IsTrading() bool {
	return s == MarketStatusContinuousMatching || s == MarketStatusAuctionMatched
}

// Direction is the trade-side direction of an order, not the position
// side it ultimately affects. See the offset/direction mapping note on
// Offset below.
type Direction uint8

const (
	DirectionUnknown Direction = iota
	DirectionLong
	DirectionShort
)

func (d Direction) String() string {
	if d == DirectionLong {
		return "LONG"
	}
	if d == DirectionShort {
		return "SHORT"
	}
	return "UNKNOWN"
}

// Opposite returns the other direction; DirectionUnknown maps to itself.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionLong:
		return DirectionShort
	case DirectionShort:
		return DirectionLong
	default:
		return DirectionUnknown
	}
}

// Offset describes an order's relationship to an existing position.
//
// Direction and Offset compose in a way that surprises readers used to
// position-side accounting: Direction is always the trade side, so
// Direction=LONG + Offset=OPEN opens a long position, but
// Direction=LONG + Offset=CLOSE* closes an existing SHORT position (the
// trader is buying to cover a short). The book selected by the SEP
// overlay for closes is therefore always the position on the *opposite*
// direction from the order. Preserve this convention exactly.
type Offset uint8

const (
	OffsetUnknown Offset = iota
	OffsetOpen
	OffsetClose
	OffsetCloseToday
	OffsetCloseYesterday
)

func (o Offset) String() string {
	switch o {
	case OffsetOpen:
		return "OPEN"
	case OffsetClose:
		return "CLOSE"
	case OffsetCloseToday:
		return "CLOSE_TODAY"
	case OffsetCloseYesterday:
		return "CLOSE_YESTERDAY"
	default:
		return "UNKNOWN"
	}
}

// IsClose reports whether the offset closes an existing position.
func (o Offset) IsClose() bool {
	return o == OffsetClose || o == OffsetCloseToday || o == OffsetCloseYesterday
}

// PositionBookDirection returns the direction of the Position an order
// with the given (direction, offset) pair affects: itself for OPEN, the
// opposite direction for any CLOSE* offset.
func PositionBookDirection(direction Direction, offset Offset) Direction {
	if offset.IsClose() {
		return direction.Opposite()
	}
	return direction
}

// OrderType is the execution constraint requested for an order.
type OrderType uint8

const (
	OrderTypeUnknown OrderType = iota
	OrderTypeLimit
	OrderTypeMarket
	OrderTypeFAK
	OrderTypeFOK
	OrderTypeStop
	OrderTypeCustom
)

func (t OrderType) String() string {
	switch t {
	case OrderTypeLimit:
		return "LIMIT"
	case OrderTypeMarket:
		return "MARKET"
	case OrderTypeFAK:
		return "FAK"
	case OrderTypeFOK:
		return "FOK"
	case OrderTypeStop:
		return "STOP"
	case OrderTypeCustom:
		return "CUSTOM"
	default:
		return "UNKNOWN"
	}
}

// OrderStatus is the mutable lifecycle state of an Order.
type OrderStatus uint8

const (
	OrderStatusUnknown OrderStatus = iota
	OrderStatusSubmitting
	OrderStatusAccepted
	OrderStatusPartiallyFilled
	OrderStatusFilled
	OrderStatusCanceling
	OrderStatusCanceled
	OrderStatusError
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusSubmitting:
		return "SUBMITTING"
	case OrderStatusAccepted:
		return "ACCEPTED"
	case OrderStatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case OrderStatusFilled:
		return "FILLED"
	case OrderStatusCanceling:
		return "CANCELING"
	case OrderStatusCanceled:
		return "CANCELED"
	case OrderStatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether the order will never change status again.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusError:
		return true
	default:
		return false
	}
}

// IsCancelable reports whether CancelOrder may still act on an order in
// this status.
func (s OrderStatus) IsCancelable() bool {
	switch s {
	case OrderStatusUnknown, OrderStatusSubmitting, OrderStatusAccepted, OrderStatusPartiallyFilled:
		return true
	default:
		return false
	}
}

// EventType categorizes the payload carried by a BrokerEvent.
type EventType uint8

const (
	EventUnknown EventType = iota
	EventCustom
	EventLog
	EventNewTradingDay
	EventConnection
	EventTick
	EventBar
	EventOrderStatus
	EventCancelFailed
	EventTradeReport
)

func (t EventType) String() string {
	switch t {
	case EventCustom:
		return "CUSTOM_EVENT"
	case EventLog:
		return "LOG"
	case EventNewTradingDay:
		return "NEW_TRADING_DAY"
	case EventConnection:
		return "CONNECTION"
	case EventTick:
		return "TICK"
	case EventBar:
		return "BAR"
	case EventOrderStatus:
		return "ORDER_STATUS"
	case EventCancelFailed:
		return "CANCEL_FAILED"
	case EventTradeReport:
		return "TRADE_REPORT"
	default:
		return "UNKNOWN"
	}
}

// ConnectionState is the payload carried by a CONNECTION event.
type ConnectionState uint8

const (
	ConnectionUnknown ConnectionState = iota
	ConnectionTDLoggedIn
	ConnectionTDLoggedOut
	ConnectionMDLoggedIn
	ConnectionMDLoggedOut
)
