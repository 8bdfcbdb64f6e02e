package migrations

import "embed"

// FS holds the schema migrations.
//
//go:embed *.sql
var FS embed.FS
