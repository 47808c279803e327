// Package migrations embeds the SQL schema applied to every snapshot file.
package migrations

import "embed"

// FS contains all SQL migration files embedded at compile time.
//
//go:embed *.sql
var FS embed.FS
