package events

import "time"

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// RunStartedData contains data for RunStarted events
type RunStartedData struct {
	RunID       string   `json:"run_id"`
	Kind        string   `json:"kind"`
	Instruments []string `json:"instruments"`
}

// EventType returns the event type for RunStartedData
func (d *RunStartedData) EventType() EventType {
	return RunStarted
}

// RunProgressData is one step of the progress stream.
// Percent is completed steps over instruments times stages.
type RunProgressData struct {
	RunID      string    `json:"run_id"`
	Instrument string    `json:"instrument"`
	Stage      string    `json:"stage"`
	Status     string    `json:"status"`
	Completed  int       `json:"completed"`
	Total      int       `json:"total"`
	Percent    float64   `json:"percent"`
	ETASeconds float64   `json:"eta_seconds,omitempty"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// EventType returns the event type for RunProgressData
func (d *RunProgressData) EventType() EventType {
	return RunProgress
}

// RunCompletedData contains data for RunCompleted events
type RunCompletedData struct {
	RunID      string `json:"run_id"`
	Status     string `json:"status"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// EventType returns the event type for RunCompletedData
func (d *RunCompletedData) EventType() EventType {
	return RunCompleted
}

// InstrumentFailedData contains data for InstrumentFailed events
type InstrumentFailedData struct {
	RunID      string `json:"run_id"`
	Instrument string `json:"instrument"`
	Stage      string `json:"stage"`
	Error      string `json:"error"`
}

// EventType returns the event type for InstrumentFailedData
func (d *InstrumentFailedData) EventType() EventType {
	return InstrumentFailed
}

// TradeExecutedData contains data for TradeExecuted events
type TradeExecutedData struct {
	RunID      string  `json:"run_id,omitempty"`
	Instrument string  `json:"instrument"`
	Side       string  `json:"side"`
	Quantity   int64   `json:"quantity"`
	Price      float64 `json:"price"`
	TradeID    string  `json:"trade_id,omitempty"`
	Mode       string  `json:"mode,omitempty"`
}

// EventType returns the event type for TradeExecutedData
func (d *TradeExecutedData) EventType() EventType {
	return TradeExecuted
}

// OrderPendingData contains data for OrderPending events
type OrderPendingData struct {
	RunID      string `json:"run_id,omitempty"`
	Instrument string `json:"instrument"`
	Side       string `json:"side"`
	Quantity   int64  `json:"quantity"`
	OrderID    string `json:"order_id"`
}

// EventType returns the event type for OrderPendingData
func (d *OrderPendingData) EventType() EventType {
	return OrderPending
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
