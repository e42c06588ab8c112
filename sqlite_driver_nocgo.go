//go:build !cgo

package main

import (
	_ "modernc.org/sqlite"
)

// Without cgo the pure-Go driver stands in for go-sqlite3; both speak the
// same SQL so SQLiteStore does not care which one is linked.
const sqliteDriver = "sqlite"

func sqliteDSN(path string) string {
	return path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}
