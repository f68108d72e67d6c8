// Package models defines the persisted reconciliation records and the
// typed job config payloads.
package models
