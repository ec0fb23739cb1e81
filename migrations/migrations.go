// Package migrations embeds the schema files applied by `vps-billing migrate`.
package migrations

import "embed"

//go:embed mysql/*.sql clickhouse/*.sql
var FS embed.FS
