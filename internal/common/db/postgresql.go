package db

import (
	_ "github.com/lib/pq"
)

// PostgreSQLConfig holds the configuration for PostgreSQL connection pool.
// DSN format: "user=postgres password=password host=localhost port=5432 dbname=dbname sslmode=disable"
type PostgreSQLConfig = PoolConfig

// NewPostgreSQLWithConfig creates a new PostgreSQL database connection.
// Queries keep MySQL-style '?' placeholders and are rebound to $n.
func NewPostgreSQLWithConfig(config *PostgreSQLConfig) (Database, error) {
	return openSQL("postgres", config, rebindDollar)
}
