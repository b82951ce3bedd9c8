package registry

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/lib/pq"
)

var validSchema = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// SQLRepository reads the service catalogue from Postgres. Tables are created
// by the migrate package.
type SQLRepository struct {
	db     *sql.DB
	schema string
}

// NewSQLRepository creates a repository using the provided schema (e.g., "gateway").
// If schema is empty or not a plain identifier, "public" is used.
func NewSQLRepository(db *sql.DB, schema string) *SQLRepository {
	if !validSchema.MatchString(schema) {
		schema = "public"
	}
	return &SQLRepository{db: db, schema: schema}
}

func (r *SQLRepository) table(name string) string {
	return pq.QuoteIdentifier(r.schema) + "." + pq.QuoteIdentifier(name)
}

// Load implements Source.
func (r *SQLRepository) Load(ctx context.Context) ([]ServiceDescriptor, error) {
	return r.LoadEnabled(ctx)
}

// LoadEnabled returns enabled services with their routes, ordered by
// creation time then key. Services without routes are skipped.
func (r *SQLRepository) LoadEnabled(ctx context.Context) ([]ServiceDescriptor, error) {
	q := fmt.Sprintf(`SELECT s.key, s.display_name, s.base_url, COALESCE(s.health_endpoint,''), COALESCE(s.swagger_path,''), rt.mount_path, COALESCE(rt.strip_prefix,'')
FROM %s s JOIN %s rt ON rt.service_key = s.key
WHERE s.enabled = TRUE
ORDER BY s.created_at ASC, s.key ASC, rt.mount_path ASC`, r.table("gateway_services"), r.table("gateway_routes"))
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query services: %w", err)
	}
	defer rows.Close()

	var list []ServiceDescriptor
	index := map[string]int{}
	for rows.Next() {
		var (
			d     ServiceDescriptor
			mount string
			strip string
		)
		if err := rows.Scan(&d.Key, &d.DisplayName, &d.BaseURL, &d.HealthEndpoint, &d.SwaggerPath, &mount, &strip); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		i, ok := index[d.Key]
		if !ok {
			i = len(list)
			index[d.Key] = i
			list = append(list, d)
		}
		list[i].Routes = append(list[i].Routes, Route{MountPath: mount, Rewrite: PrefixStrip(strip)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate services: %w", err)
	}
	return list, nil
}
