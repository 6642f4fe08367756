// Package db embeds the checkout schema.
package db

import _ "embed"

// Schema creates every table used by checkout. Statements are idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string
