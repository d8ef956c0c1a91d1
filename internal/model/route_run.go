package model

import (
	"encoding/json"
	"time"
)

// RouteRun is a persisted route simulation.
type RouteRun struct {
	RootPool    string            `json:"root_pool"`
	TokenIn     TokenID           `json:"token_in"`
	AmountIn    string            `json:"amount_in"`
	HasReferrer bool              `json:"has_referrer"`
	StepCount   int               `json:"step_count"`
	FailedCount int               `json:"failed_count"`
	Totals      map[string]string `json:"totals"`
	// Error is set when the simulation aborted.
	Error     string          `json:"error,omitempty"`
	Result    json.RawMessage `json:"result"`
	CreatedAt time.Time       `json:"created_at"`
}
