// Package migrations embeds the SQL schema migrations for livechat.db.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
