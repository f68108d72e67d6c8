package server_test

import (
	"testing"

	"billing-reconciler/core/server"

	"github.com/stretchr/testify/assert"
)

func TestConfig_IsValidEnv(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want bool
	}{
		{"Development", server.EnvDevelopment, true},
		{"Staging", server.EnvStaging, true},
		{"Production", server.EnvProduction, true},
		{"Invalid", "invalid", false},
		{"Empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := server.Config{Env: tt.env}
			assert.Equal(t, tt.want, c.IsValidEnv())
		})
	}
}
