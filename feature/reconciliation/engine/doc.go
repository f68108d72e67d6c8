// Package engine implements the core reconciliation loop: fetch
// authoritative events since the check's watermark, compare monitored
// fields against local snapshots, record a check per resource and a
// discrepancy per diverging field. Per-resource failures are isolated;
// the watermark only advances after a clean pass.
package engine
