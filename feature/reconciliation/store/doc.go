// Package store persists reconciliation jobs, checks, discrepancies
// and watermarks.
package store
