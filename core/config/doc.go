// Package config provides configuration management for the reconciliation
// service.
//
// It utilizes Viper for loading configuration from environment variables
// and .env files.
//
// # Configuration Structure
//
// The Config struct is the central repository for all application settings,
// divided into subsections:
//   - Server: HTTP server settings (port, API key, environment)
//   - Database: MySQL connection details
//   - Storage: S3/MinIO credentials and bucket settings
//   - Log: Logging level and format
//   - Events: payments provider event API endpoint and timeouts
//   - Engine: reconciliation engine windows, batching and auto-resolution
//   - Scheduler: periodic run intervals
//   - Carrier: remittance file prefix and cache TTL
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Server.Port)
package config
