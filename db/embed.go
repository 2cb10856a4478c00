// Package db embeds the server schema and the demo catalog.
package db

import _ "embed"

// Schema creates the products, variants, coupons and orders tables. It is
// idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string

// SeedProducts is the demo catalog loaded by seed-db when no products file
// is given.
//
//go:embed seed/products.json
var SeedProducts []byte
