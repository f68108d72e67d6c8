// Package snapshot reads the locally persisted transfer state the
// engine compares events against. The backing transfers table is owned
// by the dashboard application and is verified at startup, never
// migrated.
package snapshot
