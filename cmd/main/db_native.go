//go:build !cgo_sqlite

package main

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

const sqliteDriver = "sqlite"

func initDB(dataSource string) (*sql.DB, error) {
	return sql.Open(sqliteDriver, dataSource+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
}
