// Package migrations holds the versioned schema applied by `ckdmbd-server migrate up`.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
