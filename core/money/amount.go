package money

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Epsilon is the tolerance used when comparing monetary amounts.
// Two amounts within half a cent of each other are considered equal,
// which absorbs floating point noise without hiding genuine cent-level
// differences.
var Epsilon = decimal.NewFromFloat(0.005)

// envelope matches the {value, currency} object shape some payment
// provider payloads use for amounts.
type envelope struct {
	Value    json.Number `json:"value"`
	Currency string      `json:"currency"`
}

// Parse converts a raw amount value into a decimal. The input may be a
// plain JSON number, a numeric string, or a {value, currency} object.
// Currency is treated as constant (USD) and is not part of comparison.
func Parse(raw json.RawMessage) (decimal.Decimal, error) {
	if len(raw) == 0 {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	// Try the object shape first so a number inside an envelope wins
	// over a lenient string parse of the whole blob.
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Value != "" {
		return decimal.NewFromString(env.Value.String())
	}

	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return decimal.NewFromString(num.String())
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return decimal.NewFromString(str)
	}

	return decimal.Zero, fmt.Errorf("unsupported amount shape: %s", string(raw))
}

// Equal reports whether two amounts are equal within Epsilon.
func Equal(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Epsilon)
}

// Delta returns a - b.
func Delta(a, b decimal.Decimal) decimal.Decimal {
	return a.Sub(b)
}
