package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/lib/pq"
)

// migrations are applied in lexical order of their version.
var migrations = map[string]string{
	"001_gateway_services.sql": `CREATE TABLE IF NOT EXISTS {{schema}}.gateway_services (
  key TEXT PRIMARY KEY,
  display_name TEXT NOT NULL,
  base_url TEXT NOT NULL,
  health_endpoint TEXT,
  swagger_path TEXT,
  enabled BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	"002_gateway_routes.sql": `CREATE TABLE IF NOT EXISTS {{schema}}.gateway_routes (
  mount_path TEXT PRIMARY KEY,
  service_key TEXT NOT NULL REFERENCES {{schema}}.gateway_services(key) ON DELETE CASCADE,
  strip_prefix TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	"003_gateway_routes_service_idx.sql": `CREATE INDEX IF NOT EXISTS gateway_routes_service_key_idx ON {{schema}}.gateway_routes (service_key);`,
}

var validSchema = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Versions lists migration versions in apply order.
func Versions() []string {
	keys := make([]string, 0, len(migrations))
	for k := range migrations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Run creates schema and applies pending migrations, recording each in
// schema_migrations. Each migration runs in its own transaction.
func Run(ctx context.Context, db *sql.DB, schema string) error {
	if !validSchema.MatchString(schema) {
		return fmt.Errorf("invalid schema name %q", schema)
	}
	qs := pq.QuoteIdentifier(schema)

	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", qs)); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.schema_migrations (version TEXT PRIMARY KEY, applied_at TIMESTAMPTZ DEFAULT now())", qs)); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := appliedVersions(ctx, db, qs)
	if err != nil {
		return err
	}

	for _, v := range Versions() {
		if applied[v] {
			continue
		}
		sqlText := strings.ReplaceAll(migrations[v], "{{schema}}", qs)
		if err := apply(ctx, db, qs, v, sqlText); err != nil {
			return err
		}
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB, qs string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT version FROM %s.schema_migrations", qs))
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()
	applied := map[string]bool{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func apply(ctx context.Context, db *sql.DB, qs, version, sqlText string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, sqlText); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("apply %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s.schema_migrations (version) VALUES ($1)", qs), version); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record %s: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", version, err)
	}
	return nil
}
