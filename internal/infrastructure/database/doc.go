// Package database opens the gateway's SQLite store and applies schema
// migrations.
//
// The store is optional and only backs the command journal; the device
// registry is never persisted.
//
//	db, err := database.Open(cfg.Journal.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Queries must use ? placeholders. The file is created with mode 0600.
package database
