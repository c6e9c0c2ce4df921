package migration

import "embed"

// Dir is the directory inside Files holding the schema migrations.
const Dir = "sql"

// Files holds the migrations shipped with the binary.
//
//go:embed sql/*.sql
var Files embed.FS
