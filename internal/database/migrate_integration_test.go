//go:build integration

package database_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/saturnino-fabrica-de-software/vigia/internal/database"
)

func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "pgvector/pgvector:pg16",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "vigia_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	db, err := sql.Open("pgx", fmt.Sprintf("postgres://test:test@%s:%s/vigia_test?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestMigratorIntegration(t *testing.T) {
	db := startPostgres(t)

	migrator, err := database.NewMigrator(db, "vigia_test")
	require.NoError(t, err)

	require.NoError(t, migrator.Up())

	for _, table := range []string{"identities", "face_embeddings", "cameras", "attendance_events", "alerts"} {
		assertTableExists(t, db, table)
	}

	version, dirty, err := migrator.Version()
	require.NoError(t, err)
	assert.False(t, dirty, "migration should not be dirty")
	assert.Equal(t, uint(4), version)

	t.Run("embeddings cascade with their identity", func(t *testing.T) {
		_, err := db.Exec(`INSERT INTO identities (id, display_name) VALUES ('alice', 'Alice')`)
		require.NoError(t, err)

		vec := "[" + strings512() + "]"
		_, err = db.Exec(`INSERT INTO face_embeddings (identity_id, embedding) VALUES ('alice', $1)`, vec)
		require.NoError(t, err)

		_, err = db.Exec(`DELETE FROM identities WHERE id = 'alice'`)
		require.NoError(t, err)

		var count int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM face_embeddings WHERE identity_id = 'alice'`).Scan(&count))
		assert.Zero(t, count)
	})

	require.NoError(t, migrator.Down())
	version, _, err = migrator.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(3), version)

	require.NoError(t, migrator.Close())
}

func strings512() string {
	s := "1"
	for i := 1; i < 512; i++ {
		s += ",0"
	}
	return s
}

func assertTableExists(t *testing.T, db *sql.DB, tableName string) {
	t.Helper()

	var exists bool
	err := db.QueryRow(`
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = $1
		)
	`, tableName).Scan(&exists)

	require.NoError(t, err)
	assert.True(t, exists, "table %s should exist", tableName)
}
