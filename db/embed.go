// Package db embeds the PostgreSQL schema of the key-value backend.
package db

import _ "embed"

// Schema creates the kv_entries table. It is idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string
