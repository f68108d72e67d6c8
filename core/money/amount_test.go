package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "plain number", raw: `100.5`, want: "100.5"},
		{name: "integer", raw: `42`, want: "42"},
		{name: "numeric string", raw: `"99.99"`, want: "99.99"},
		{name: "envelope", raw: `{"value": 100.50, "currency": "USD"}`, want: "100.5"},
		{name: "envelope with string value", raw: `{"value": "12.34", "currency": "USD"}`, want: "12.34"},
		{name: "empty", raw: ``, wantErr: true},
		{name: "garbage", raw: `{"foo": true}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
				"got %s, want %s", got, tt.want)
		})
	}
}

func TestEqualTolerance(t *testing.T) {
	a := decimal.RequireFromString("100.00")

	// Sub-tolerance noise is equal.
	assert.True(t, Equal(a, decimal.RequireFromString("100.001")))
	assert.True(t, Equal(a, decimal.RequireFromString("99.999")))
	assert.True(t, Equal(a, decimal.RequireFromString("100.005")))

	// A full cent is a genuine difference.
	assert.False(t, Equal(a, decimal.RequireFromString("100.01")))
	assert.False(t, Equal(a, decimal.RequireFromString("99.99")))
}

func TestDelta(t *testing.T) {
	d := Delta(decimal.RequireFromString("10.00"), decimal.RequireFromString("10.51"))
	assert.Equal(t, "-0.51", d.StringFixed(2))
}
