package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"billing-reconciler/core/money"
	"billing-reconciler/feature/reconciliation/events"
	"billing-reconciler/feature/reconciliation/snapshot"
)

// fieldMismatch captures one diverging field with both values already
// JSON-serialized for audit storage.
type fieldMismatch struct {
	Field              string
	AuthoritativeValue string
	LocalValue         string
}

// normalizeStatus makes status comparison insensitive to case and
// surrounding whitespace; everything else is a genuine mismatch.
func normalizeStatus(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// serialize JSON-encodes a value for audit columns.
func serialize(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%q", fmt.Sprintf("%v", v))
	}
	return string(raw)
}

// compareFields diffs the monitored fields between an event payload and
// a snapshot. A field that cannot be parsed yields an error instead of a
// silent match or mismatch.
func compareFields(fields []string, event events.Event, snap *snapshot.Snapshot) ([]fieldMismatch, error) {
	var mismatches []fieldMismatch

	for _, field := range fields {
		switch field {
		case "status":
			if normalizeStatus(event.Payload.Status) != normalizeStatus(snap.Status) {
				mismatches = append(mismatches, fieldMismatch{
					Field:              "status",
					AuthoritativeValue: serialize(event.Payload.Status),
					LocalValue:         serialize(snap.Status),
				})
			}
		case "amount":
			if len(event.Payload.Amount) == 0 {
				continue
			}
			authoritative, err := money.Parse(event.Payload.Amount)
			if err != nil {
				return nil, fmt.Errorf("failed to parse event amount for %s: %w", event.ResourceID, err)
			}
			if !money.Equal(authoritative, snap.Amount) {
				mismatches = append(mismatches, fieldMismatch{
					Field:              "amount",
					AuthoritativeValue: serialize(authoritative.String()),
					LocalValue:         serialize(snap.Amount.String()),
				})
			}
		default:
			return nil, fmt.Errorf("unknown monitored field %s", field)
		}
	}

	return mismatches, nil
}
