// Package manager owns the reconciliation job lifecycle. It enforces
// single-flight per scope (a check set, or a premium billing period),
// persists jobs through pending, running and terminal states, and runs
// the scheduled background loops.
package manager
