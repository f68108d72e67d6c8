package engine

import "time"

// Config holds tunable defaults for the reconciliation engine.
type Config struct {
	// LookbackHours bounds the event window when a check has no
	// persisted watermark yet.
	LookbackHours int `mapstructure:"lookback_hours" default:"24"`
	// BatchSize is how many events are processed between delays.
	BatchSize int `mapstructure:"batch_size" default:"50"`
	// BatchDelayMs is the pause between batches, respecting provider
	// rate limits.
	BatchDelayMs int `mapstructure:"batch_delay_ms" default:"200"`
	// AutoResolve enables system resolution for the built-in transfer
	// status check.
	AutoResolve bool `mapstructure:"auto_resolve" default:"false"`
}

// CheckConfig describes one named comparison rule.
type CheckConfig struct {
	// Name is the unique check name, also the watermark key.
	Name string
	// ResourceType filters events and tags checks (e.g. "transfer").
	ResourceType string
	// Fields are the monitored fields ("status", "amount").
	Fields []string
	// AutoResolve applies the default resolution policy (accept the
	// authoritative value) to every discrepancy this check detects.
	AutoResolve bool
	// Lookback bounds the event window when no watermark exists.
	Lookback time.Duration
	// BatchSize and BatchDelay control paced iteration over events.
	BatchSize  int
	BatchDelay time.Duration
}

// TransferStatusCheck is the built-in check comparing transfer status
// and amount between provider events and local snapshots.
func TransferStatusCheck(cfg Config) CheckConfig {
	lookback := time.Duration(cfg.LookbackHours) * time.Hour
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	return CheckConfig{
		Name:         "transfer_status",
		ResourceType: "transfer",
		Fields:       []string{"status", "amount"},
		AutoResolve:  cfg.AutoResolve,
		Lookback:     lookback,
		BatchSize:    batchSize,
		BatchDelay:   time.Duration(cfg.BatchDelayMs) * time.Millisecond,
	}
}
