// Package testutil holds helpers shared by repository tests.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"teamhq/internal/db"
)

// DSNEnv names the variable that enables Postgres-backed tests.
const DSNEnv = "TEAMHQ_TEST_DSN"

// Postgres opens the test database, applies the schema and empties every
// table. Tests are skipped when TEAMHQ_TEST_DSN is unset.
func Postgres(t testing.TB) *sql.DB {
	t.Helper()
	dsn := os.Getenv(DSNEnv)
	if dsn == "" {
		t.Skipf("%s not set; skipping Postgres test", DSNEnv)
	}

	ctx := context.Background()
	database, err := db.NewDatabase(ctx, dsn, db.Options{MaxOpenConns: 4})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.AutoMigrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := database.Conn.ExecContext(ctx, `TRUNCATE messages, channels, team_members CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return database.Conn
}
