package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/CTAG07/babbler/pkg/markov"
)

// openDatabase opens the SQLite database at path, creating its directory if
// needed, and makes sure every schema the binary relies on exists.
func openDatabase(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := initDB(path)
	if err != nil {
		return nil, err
	}
	if err = markov.SetupSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to setup model schema: %w", err)
	}
	if err = setupAuthSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to setup auth schema: %w", err)
	}
	return db, nil
}
