// Package migrations embeds the gateway's SQL schema migrations so the
// binary can migrate its journal database without files on disk.
package migrations

import "embed"

// FS holds every *.sql migration at its root, ready for
// database.DB.Migrate.
//
//go:embed *.sql
var FS embed.FS
