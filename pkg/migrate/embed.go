package migrate

import "embed"

// Migrations holds the goose SQL files compiled into every binary so the api
// and the migrate command apply the same schema regardless of working dir.
//
//go:embed migrations/*.sql
var Migrations embed.FS

const embeddedDir = "migrations"
