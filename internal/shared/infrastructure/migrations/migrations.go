package migrations

import (
	"context"
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/felixgeelhaar/schedcache/internal/shared/infrastructure/database"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

const createVersionTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version    TEXT PRIMARY KEY,
    applied_ms BIGINT NOT NULL
)`

// Pending returns the names of the migrations for driver that have not
// been applied yet, in order.
func Pending(ctx context.Context, conn database.Connection) ([]string, error) {
	all, err := list(conn.Driver())
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, createVersionTable); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	applied, err := appliedVersions(ctx, conn)
	if err != nil {
		return nil, err
	}

	var pending []string
	for _, name := range all {
		if !applied[name] {
			pending = append(pending, name)
		}
	}
	return pending, nil
}

// Run executes every pending migration in order, each in its own
// transaction, and returns the names it applied.
func Run(ctx context.Context, conn database.Connection) ([]string, error) {
	pending, err := Pending(ctx, conn)
	if err != nil {
		return nil, err
	}

	dir := conn.Driver().String()
	uow := database.NewUnitOfWork(conn)
	for _, name := range pending {
		body, err := files.ReadFile(path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		err = uow.Do(ctx, func(ctx context.Context) error {
			exec := database.ExecutorFromContext(ctx, conn)
			if _, err := exec.Exec(ctx, string(body)); err != nil {
				return err
			}
			_, err := exec.Exec(ctx,
				database.Rebind(conn.Driver(), `INSERT INTO schema_migrations (version, applied_ms) VALUES (?, ?)`),
				name, time.Now().UnixMilli(),
			)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
	}
	return pending, nil
}

func list(driver database.Driver) ([]string, error) {
	if !driver.IsValid() {
		return nil, fmt.Errorf("no migrations for driver %q", driver)
	}
	entries, err := files.ReadDir(driver.String())
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func appliedVersions(ctx context.Context, conn database.Connection) (map[string]bool, error) {
	rows, err := conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}
