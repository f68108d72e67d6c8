package server

// Config holds configuration for the HTTP server.
type Config struct {
	// Port is the port where the server will listen.
	Port string `mapstructure:"port" default:"8080"`
	// ApiKey is the secret key required to access the API.
	ApiKey string `mapstructure:"api_key" default:""`
	// Env specifies the runtime environment (development, staging, production).
	Env string `mapstructure:"env" default:"development"`
}

const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// IsValidEnv checks if the configured environment is valid.
func (c Config) IsValidEnv() bool {
	switch c.Env {
	case EnvDevelopment, EnvStaging, EnvProduction:
		return true
	default:
		return false
	}
}
