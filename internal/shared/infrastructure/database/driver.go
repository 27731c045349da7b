package database

import (
	"fmt"
	"strconv"
	"strings"
)

// Driver names a supported backing store.
type Driver string

const (
	DriverAuto     Driver = "auto"
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

func (d Driver) String() string {
	return string(d)
}

// IsValid reports whether d names a concrete backend.
func (d Driver) IsValid() bool {
	return d == DriverPostgres || d == DriverSQLite
}

// Placeholder returns the bind marker for the n-th (1-based) parameter.
func (d Driver) Placeholder(n int) string {
	if d == DriverPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// ParseDriver validates a configured driver name. Empty means auto.
func ParseDriver(name string) (Driver, error) {
	switch d := Driver(strings.ToLower(strings.TrimSpace(name))); d {
	case "", DriverAuto:
		return DriverAuto, nil
	case "postgresql", "pgx":
		return DriverPostgres, nil
	case "sqlite3":
		return DriverSQLite, nil
	default:
		if !d.IsValid() {
			return "", fmt.Errorf("unsupported database driver: %q", name)
		}
		return d, nil
	}
}

var (
	postgresPrefixes = []string{"postgres://", "postgresql://"}
	sqlitePrefixes   = []string{"sqlite://", "file:"}
	sqliteSuffixes   = []string{".db", ".sqlite", ".sqlite3"}
)

// DetectDriver infers the driver from a connection string. An empty URL
// selects SQLite so a bare install runs without a server; anything not
// recognisable as a SQLite file is handed to PostgreSQL as a DSN.
func DetectDriver(url string) Driver {
	if url == "" {
		return DriverSQLite
	}
	for _, p := range postgresPrefixes {
		if strings.HasPrefix(url, p) {
			return DriverPostgres
		}
	}
	for _, p := range sqlitePrefixes {
		if strings.HasPrefix(url, p) {
			return DriverSQLite
		}
	}
	for _, s := range sqliteSuffixes {
		if strings.HasSuffix(url, s) {
			return DriverSQLite
		}
	}
	return DriverPostgres
}
