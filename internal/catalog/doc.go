// Package catalog turns spreadsheet rows into an immutable, searchable
// Catalog: ordered records, inverted indexes, prefix and n-gram buckets and a
// content fingerprint.
//
// A Catalog is built wholesale by Build and never mutated afterward, except
// for per-record detail backfill guarded by the catalog's own lock.
package catalog
