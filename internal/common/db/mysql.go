package db

import (
	_ "github.com/go-sql-driver/mysql"
)

// MySQLConfig holds the configuration for MySQL connection pool.
// DSN format: "user:password@tcp(host:port)/dbname?parseTime=true&loc=UTC"
type MySQLConfig = PoolConfig

// NewMySQLWithConfig creates a new MySQL database connection with connection pool
func NewMySQLWithConfig(config *MySQLConfig) (Database, error) {
	return openSQL("mysql", config, nil)
}
