package events

import (
	"context"
	"encoding/json"
	"time"
)

// Payload carries the authoritative field values of an event. Amount is
// kept raw because providers send it as a plain number, a string, or a
// {value, currency} object; core/money normalizes it at comparison time.
type Payload struct {
	Status string          `json:"status"`
	Amount json.RawMessage `json:"amount,omitempty"`
}

// Event is an authoritative notification from the payments provider
// describing a state change on a resource.
type Event struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	ResourceID   string    `json:"resourceId"`
	ResourceType string    `json:"resourceType"`
	Payload      Payload   `json:"payload"`
	Timestamp    time.Time `json:"timestamp"`
}

// Filter narrows a GetEvents call. Zero values are ignored.
type Filter struct {
	ResourceType string
	Since        time.Time
	Limit        int
}

// Source is the event source adapter the reconciliation engine pulls
// authoritative events from and pushes reconciled follow-up events to.
type Source interface {
	// GetEvents returns raw events matching the filter, oldest first.
	GetEvents(ctx context.Context, filter Filter) ([]Event, error)
	// EmitEvent queues a synthetic event for normal downstream
	// processing (e.g. a *_reconciled follow-up after auto-resolution).
	EmitEvent(ctx context.Context, event Event) error
}

// Config holds configuration for the payments provider event API.
type Config struct {
	// BaseURL is the root of the provider's event API.
	BaseURL string `mapstructure:"base_url" default:"http://localhost:4010"`
	// ApiKey is the bearer token for the provider API.
	ApiKey string `mapstructure:"api_key" default:""`
	// TimeoutSeconds bounds every API call so one unreachable dependency
	// cannot hang a whole reconciliation job.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"15"`
	// PageLimit is the maximum events fetched per call.
	PageLimit int `mapstructure:"page_limit" default:"100"`
}
