package database

import (
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// sqliteDSN enables WAL for concurrent readers and makes every transaction
// take the write lock at BEGIN, which serializes writers on the database.
func sqliteDSN(path string) string {
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate", path)
}
