// Package events provides event management functionality.
package events

import (
	"encoding/json"
	"time"
)

// EventType represents different event types
type EventType string

const (
	// Run lifecycle
	RunStarted   EventType = "RUN_STARTED"
	RunProgress  EventType = "RUN_PROGRESS"
	RunCompleted EventType = "RUN_COMPLETED"

	// Per-instrument outcomes
	InstrumentFailed EventType = "INSTRUMENT_FAILED"
	TradeExecuted    EventType = "TRADE_EXECUTED"
	OrderPending     EventType = "ORDER_PENDING"

	ErrorOccurred EventType = "ERROR_OCCURRED"
)

// AllTypes lists every event type, in the order stream clients subscribe to them
var AllTypes = []EventType{
	RunStarted,
	RunProgress,
	RunCompleted,
	InstrumentFailed,
	TradeExecuted,
	OrderPending,
	ErrorOccurred,
}

// Event represents a system event.
// Data holds the typed payload flattened to a map; GetTypedData restores it.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}

// GetTypedData attempts to convert the Data map to typed EventData.
// Returns nil if the type is unknown or the conversion fails.
func (e *Event) GetTypedData() EventData {
	if e.Data == nil {
		return nil
	}

	var data EventData
	switch e.Type {
	case RunStarted:
		data = &RunStartedData{}
	case RunProgress:
		data = &RunProgressData{}
	case RunCompleted:
		data = &RunCompletedData{}
	case InstrumentFailed:
		data = &InstrumentFailedData{}
	case TradeExecuted:
		data = &TradeExecutedData{}
	case OrderPending:
		data = &OrderPendingData{}
	case ErrorOccurred:
		data = &ErrorEventData{}
	default:
		return nil
	}

	if err := convertMapToStruct(e.Data, data); err != nil {
		return nil
	}
	return data
}

// convertMapToStruct converts a map[string]interface{} to a struct
func convertMapToStruct(m map[string]interface{}, v interface{}) error {
	jsonBytes, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonBytes, v)
}

// convertEventDataToMap flattens typed EventData for the bus
func convertEventDataToMap(data EventData) map[string]interface{} {
	if data == nil {
		return nil
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &result); err != nil {
		return nil
	}
	return result
}
