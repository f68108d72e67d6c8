// Package server holds the HTTP server configuration and constants.
//
// While the main application entry point handles the server startup, this
// package defines the configuration structures and valid values for server
// settings, such as the runtime environment.
//
// # Configuration
//
// The Config struct defines the HTTP port, API key, and the runtime
// environment (development, staging, production).
//
// # Usage
//
// This package is primarily used by the core/config package to embed server
// settings.
package server
