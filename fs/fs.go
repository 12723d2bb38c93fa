// Package appfs embeds static assets shipped with the binary:
// email templates and database migrations.
package appfs

import "embed"

// all: keeps the _base.* template layouts, which plain patterns skip
//go:embed all:assets migrations
var FS embed.FS
