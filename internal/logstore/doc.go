// Package logstore provides the SQLite-backed log store.
//
// The store uses the pure-Go modernc.org/sqlite driver in WAL mode, so no
// CGO toolchain is needed. Schema changes live in migrations/ as numbered
// NNN_name.up.sql files applied in order at open time.
package logstore
