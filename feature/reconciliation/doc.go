// Package reconciliation exposes the transfer reconciliation HTTP
// surface: starting runs, listing job history, and inspecting and
// resolving discrepancies. The job lifecycle itself lives in the
// manager subpackage; comparison logic in engine.
package reconciliation
