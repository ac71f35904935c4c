package domain

import (
	"fmt"
	"time"
)

// OrderStatus is the lifecycle state of an order
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderSubmitted OrderStatus = "submitted"
	OrderFilled    OrderStatus = "filled"
	OrderRejected  OrderStatus = "rejected"
)

// allowedTransitions encodes Pending -> Submitted -> {Filled, Rejected}
var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:   {OrderSubmitted},
	OrderSubmitted: {OrderFilled, OrderRejected},
}

// Order is created by the executor from an aggregated decision
type Order struct {
	ID             string      `json:"id"`
	RunID          string      `json:"run_id,omitempty"`
	Instrument     string      `json:"instrument"`
	Side           Action      `json:"side"`
	Quantity       int64       `json:"quantity"`
	ReferencePrice float64     `json:"reference_price"`
	CommissionRate *float64    `json:"commission_rate,omitempty"` // nil uses the broker's rate
	Status         OrderStatus `json:"status"`
	Reason         string      `json:"reason,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Transition moves the order to the next status, enforcing the lifecycle
func (o *Order) Transition(to OrderStatus, at time.Time) error {
	for _, next := range allowedTransitions[o.Status] {
		if next == to {
			o.Status = to
			o.UpdatedAt = at
			return nil
		}
	}
	return fmt.Errorf("invalid order transition %s -> %s for %s", o.Status, to, o.Instrument)
}

// Terminal reports whether the order can no longer change
func (o *Order) Terminal() bool {
	return o.Status == OrderFilled || o.Status == OrderRejected
}

// Validate checks the order before it reaches a broker
func (o *Order) Validate() error {
	if o.Instrument == "" {
		return fmt.Errorf("instrument is required")
	}
	if o.Side != ActionBuy && o.Side != ActionSell {
		return fmt.Errorf("side must be Buy or Sell, got %q", o.Side)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", o.Quantity)
	}
	if o.ReferencePrice <= 0 {
		return fmt.Errorf("reference price must be positive, got %f", o.ReferencePrice)
	}
	return nil
}
