package schema

// BrokerEvent is the envelope posted on the event bus. SourceID uniquely
// identifies the emitting adapter instance; Data carries the payload
// appropriate to Type (Tick, Bar, Order, Trade, CancelFailedData,
// NewTradingDayData, ConnectionData, LogData, or an arbitrary value for
// EventCustom).
type BrokerEvent struct {
	Type     EventType
	SourceID string
	Data     any
}

// CancelFailedData is the payload of an EventCancelFailed event: the
// order as it stood when cancellation was rejected.
type CancelFailedData struct {
	Order Order
}

// NewTradingDayData is the payload of an EventNewTradingDay event.
type NewTradingDayData struct {
	TradingDay string
}

// ConnectionData is the payload of an EventConnection event.
type ConnectionData struct {
	State ConnectionState
}

// LogLevel is the severity of a LogData payload.
type LogLevel uint8

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// LogData is the payload of an EventLog event.
type LogData struct {
	Level   LogLevel
	Message string
}
