package migrations

import "embed"

// FS contains embedded SQLite migrations for drop storage.
//
//go:embed *.sql
var FS embed.FS
