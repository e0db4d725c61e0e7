package postgres

import "embed"

// MigrationsFS embeds the goose SQL migrations so the server binary can
// apply them without access to the source tree.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS
