// Package xerror declares the sentinel errors shared across the broker
// facade, grouped by the component that raises them and by error kind
// (INVALID_ARGUMENT, PRECONDITION, NOT_FOUND, STATE_CONFLICT,
// BACKEND_FAILURE). Callers use errors.Is to distinguish kinds; wrap with
// github.com/yanun0323/errors.Wrap to attach call-site context.
package xerror

import "errors"

// Bar aggregator / second-bar generator (C3/C4).
var (
	// ErrInvalidInterval is INVALID_ARGUMENT: the interval is not a
	// divisor of 60 greater than 1, or (for the aggregator) not a
	// positive multiple of 60.
	ErrInvalidInterval = errors.New("bar: invalid interval")
)

// Tick order matcher (C5).
var (
	// ErrNoLastTick is the matcher's ERROR-status reason: no cached or
	// supplied tick for the code.
	ErrNoLastTick = errors.New("no last tick")
	// ErrNotTradeable is the matcher's ERROR-status reason: the tick's
	// market status does not allow order entry.
	ErrNotTradeable = errors.New("match: instrument not tradeable")
	// ErrUnsupportedOrderType is the matcher's ERROR-status reason:
	// STOP/CUSTOM/UNKNOWN order types are not simulated.
	ErrUnsupportedOrderType = errors.New("match: unsupported order type")
	// ErrOrderNotFound is NOT_FOUND: CancelOrder referenced an unknown
	// orderId.
	ErrOrderNotFound = errors.New("match: order not found")
	// ErrOrderNotCancelable is STATE_CONFLICT: CancelOrder targeted a
	// terminal-state order. Surfaced only as a CANCEL_FAILED event, never
	// returned as an error.
	ErrOrderNotCancelable = errors.New("match: order is not cancelable")
)

// SEP overlay (C6).
var (
	// ErrDisabled is PRECONDITION: the overlay instance has been
	// disabled.
	ErrDisabled = errors.New("sep: overlay disabled")
	// ErrInsufficientCash is PRECONDITION: available cash is below the
	// order's required frozen cash on an OPEN.
	ErrInsufficientCash = errors.New("sep: insufficient available cash")
	// ErrInsufficientCloseable is PRECONDITION: closeable volume is
	// below the requested close volume.
	ErrInsufficientCloseable = errors.New("sep: insufficient closeable volume")
	// ErrInvalidSubAccountName is INVALID_ARGUMENT: the sub-account id
	// contains a forbidden character.
	ErrInvalidSubAccountName = errors.New("sep: sub-account name contains forbidden characters")
	// ErrUnknownOffsetDirection is an internal invariant violation: an
	// order carries a direction/offset combination the overlay cannot
	// map to a position book. Indicates a bug, not caller error.
	ErrUnknownOffsetDirection = errors.New("sep: unknown direction/offset combination")
)

// Data-manager port (C7).
var (
	// ErrNotFound is NOT_FOUND: a query-by-key found no record.
	ErrNotFound = errors.New("datamgr: record not found")
)

// Broker capability interface / simulator adapter (C8).
var (
	// ErrUnsupportedCustomRequest is INVALID_ARGUMENT: the simulator
	// adapter has no handler for the requested custom method.
	ErrUnsupportedCustomRequest = errors.New("facade: unsupported custom request")
)
