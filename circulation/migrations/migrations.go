package migrations

import "embed"

// MigrationFiles holds goose migrations, one directory per dialect.
//
//go:embed postgres/*.sql sqlite/*.sql
var MigrationFiles embed.FS
