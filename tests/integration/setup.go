// Package integration runs enrichment code against real backing
// stores started in throwaway containers rather than mocks, matching
// how repository code is exercised elsewhere in this project.
package integration

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	postgresmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"enrich/pkg/migrations"
)

const containerStartupTimeout = 60

// TestInfra holds the live connections a single test needs, so a
// test that only needs Postgres doesn't pay to start Mongo or Redis.
type TestInfra struct {
	PostgresDB   *sql.DB
	PostgresConn string
}

func SetupPostgres(t *testing.T, migrationsPath string) *TestInfra {
	t.Helper()

	ctx := context.Background()
	if os.Getenv("TESTCONTAINERS_RYUK_DISABLED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	}

	container, err := postgresmodule.Run(ctx, "postgres:15",
		postgresmodule.WithDatabase("enrich_test"),
		postgresmodule.WithUsername("enrich_test"),
		postgresmodule.WithPassword("enrich_test"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("5432/tcp").WithStartupTimeout(containerStartupTimeout*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	conn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("postgres", conn)
	if err != nil {
		t.Fatalf("failed to open postgres connection: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		t.Fatalf("failed to ping postgres: %v", err)
	}

	if err := migrations.RunPostgresMigrations(db, migrationsPath); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return &TestInfra{PostgresDB: db, PostgresConn: conn}
}

func seedAccountTierTable(t *testing.T, db *sql.DB) {
	t.Helper()
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS account_tier (
			account_id TEXT PRIMARY KEY,
			tier       TEXT NOT NULL
		)
	`)
	if err != nil {
		t.Fatalf("failed to create lookup table: %v", err)
	}
	_, err = db.Exec(`INSERT INTO account_tier (account_id, tier) VALUES ($1, $2) ON CONFLICT DO NOTHING`, "acct-1", "gold")
	if err != nil {
		t.Fatalf("failed to seed lookup table: %v", err)
	}
}
