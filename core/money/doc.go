// Package money provides decimal parsing and tolerance-based comparison
// for monetary amounts.
//
// Payment provider payloads are inconsistent about amount shapes: some
// events carry a plain number, others a {value, currency} object, and
// some a numeric string. Parse normalizes all of them into a
// shopspring/decimal value so comparisons never go through float64.
//
// Comparison uses a fixed Epsilon of half a cent ($0.005). This is the
// single documented tolerance for both field-level amount comparison and
// premium report validation.
package money
