// Package repotest connects repository integration tests to a migrated postgres database
package repotest

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/database"
)

func env(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func migrationsFolder() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "db", "pg")
}

// Connect returns a migrated database with empty tables. The test is skipped in short
// mode or when the database cannot be reached.
func Connect(t *testing.T) database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping postgres integration test in short mode")
	}

	_ = godotenv.Load("../../../.env")
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	cfg := database.Config{
		Host:     env("DB_HOST", "localhost"),
		Port:     env("DB_PORT", "5432"),
		User:     env("DB_USER_NAME", "postgres"),
		Password: env("DB_PASSWORD", "postgres"),
		Name:     env("DB_NAME", "clover_test"),
		SSLMode:  env("DB_SSL_MODE", "disable"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	db, err := database.Open(ctx, cfg, logger)
	if err != nil {
		t.Skipf("Skipping postgres integration test: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	migrations := database.NewMigrationService(logger, database.MigrationConfig{FolderPath: migrationsFolder()})
	require.NoError(t, migrations.Migrate(db, cfg.Name))

	_, err = db.ExecContext(context.Background(), "TRUNCATE contact_companies, identifiers, entities, issues, drafts")
	require.NoError(t, err)

	return db
}
