// Package migrations embeds the SQL migrations for the Postgres account
// store, applied via golang-migrate's iofs source driver.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
