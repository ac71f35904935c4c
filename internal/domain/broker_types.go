package domain

import "time"

// Fill is the broker's confirmation of an executed order
type Fill struct {
	OrderID    string    `json:"order_id"`
	Instrument string    `json:"instrument"`
	Side       Action    `json:"side"`
	Quantity   int64     `json:"quantity"`
	Price      float64   `json:"price"`
	Commission float64   `json:"commission"`
	FilledAt   time.Time `json:"filled_at"`
}

// ExecutionOutcome is what the executor returns for one decision.
// Exactly one of Trade or Pending is set when an order was created.
type ExecutionOutcome struct {
	Decision AggregatedDecision `json:"decision"`
	Order    *Order             `json:"order,omitempty"`
	Trade    *TradeRecord       `json:"trade,omitempty"`
	Pending  bool               `json:"pending"`
	Held     bool               `json:"held"`
	Reason   string             `json:"reason,omitempty"`
}
