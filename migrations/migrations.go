// Package migrations contains the SQL migrations of the volunteerhub database.
// Migrations are executed in lexical order of their filename.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
