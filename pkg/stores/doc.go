// Package stores persists slngen generation history in SQLite.
//
// Each run records its solutions, output root and final status, plus the
// path and SHA-256 of every artifact it processed. The generator reads the
// latest successful run's artifacts back to remove stale files. Schema
// changes ship as embedded golang-migrate migrations.
package stores
