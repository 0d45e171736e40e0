package migrations

import "embed"

// FS holds the service schema; files live under Dir.
//
//go:embed sql/*.sql
var FS embed.FS

const Dir = "sql"
