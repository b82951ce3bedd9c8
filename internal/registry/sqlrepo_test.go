package registry

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var serviceColumns = []string{"key", "display_name", "base_url", "health_endpoint", "swagger_path", "mount_path", "strip_prefix"}

func TestSQLRepositoryLoadEnabledGroupsRoutes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	query := regexp.QuoteMeta(`FROM "gateway"."gateway_services" s JOIN "gateway"."gateway_routes" rt`)
	rows := func() *sqlmock.Rows {
		return sqlmock.NewRows(serviceColumns).
			AddRow("reports", "reports-service", "http://localhost:3020", "/status", "", "/api/exports", "").
			AddRow("reports", "reports-service", "http://localhost:3020", "/status", "", "/api/reports", "/api").
			AddRow("audit", "audit-service", "http://localhost:3021", "", "", "/api/audit", "")
	}
	mock.ExpectQuery(query).WillReturnRows(rows())

	repo := NewSQLRepository(db, "gateway")
	list, err := repo.LoadEnabled(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, "reports", list[0].Key)
	assert.Equal(t, "/status", list[0].HealthEndpoint)
	require.Len(t, list[0].Routes, 2)
	assert.Equal(t, "/api/exports", list[0].Routes[0].MountPath)
	assert.Equal(t, RewriteNone, list[0].Routes[0].Rewrite.Kind())
	assert.Equal(t, RewritePrefixStrip, list[0].Routes[1].Rewrite.Kind())
	assert.Equal(t, "audit", list[1].Key)

	mock.ExpectQuery(query).WillReturnRows(rows())
	reg := New()
	require.NoError(t, LoadInto(context.Background(), reg, repo))
	d, _, ok := reg.Resolve("/api/reports/2024")
	require.True(t, ok)
	assert.Equal(t, "reports", d.Key)
	assert.Equal(t, "/swagger.json", d.SwaggerPath)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepositoryQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("relation does not exist")
	mock.ExpectQuery("SELECT").WillReturnError(boom)

	_, err = NewSQLRepository(db, "gateway").LoadEnabled(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepositoryInvalidSchemaFallsBackToPublic(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM "public"."gateway_services"`)).
		WillReturnRows(sqlmock.NewRows(serviceColumns))

	list, err := NewSQLRepository(db, `gateway"; DROP TABLE x; --`).LoadEnabled(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NoError(t, mock.ExpectationsWereMet())
}
