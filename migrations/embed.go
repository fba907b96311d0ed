package migrations

import "embed"

// Files exposes embedded Postgres migration files ordered lexicographically.
//
//go:embed *.sql
var Files embed.FS

// SQLite holds the schema of the local device store under sqlite/.
//
//go:embed sqlite/*.sql
var SQLite embed.FS
