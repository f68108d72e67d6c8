// Package events is the adapter for the payments provider's event API,
// the authoritative side of every comparison.
package events
