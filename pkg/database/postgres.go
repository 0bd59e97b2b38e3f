package database

// Registers the "pgx" database/sql driver.
import _ "github.com/jackc/pgx/v5/stdlib"
