package domain

import "time"

// Signal is one strategy's recommendation for one snapshot. Never mutated.
type Signal struct {
	Source     StrategyID         `json:"source"`
	Instrument string             `json:"instrument"`
	Action     Action             `json:"action"`
	Reason     string             `json:"reason"`
	Evidence   map[string]float64 `json:"evidence,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
}

// AggregatedDecision is the single decision derived from a signal set
type AggregatedDecision struct {
	Instrument string         `json:"instrument"`
	Action     Action         `json:"action"`
	VoteCounts map[Action]int `json:"vote_counts"`
	TieBroken  bool           `json:"tie_broken"`
	Sentiment  float64        `json:"sentiment"`
	Timestamp  time.Time      `json:"timestamp"`
	Signals    []Signal       `json:"signals,omitempty"`
}
