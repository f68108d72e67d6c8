// Package database handles database connections and schema inspection.
//
// It provides a wrapper around GORM to properly configure MySQL connections
// based on the application's configuration, with bounded connect and I/O
// timeouts.
//
// # Connect
//
// The Connect function establishes a pooled connection to the database and
// verifies it with a ping before returning.
//
// # Schema Inspection
//
// The reconciliation service shares its database with the dashboard
// application that owns the transfers table. GetTableColumns lets the
// snapshot store verify the expected columns are present before a
// reconciliation run starts instead of failing midway through.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    log.Fatal("Database connection failed", err)
//	}
//
//	columns, err := database.GetTableColumns(db, "transfers")
package database
