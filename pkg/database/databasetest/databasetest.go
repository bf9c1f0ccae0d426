// Package databasetest provides a migrated PostgreSQL schema for repository tests.
//
// TEST_DATABASE_URL points the tests at an existing server; otherwise a throwaway
// container is started with testcontainers. Each test binary gets its own schema, so
// packages can run in parallel against one server. Tests are skipped with -short or
// when neither a server nor Docker is available.
package databasetest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kampus-akademi/backend/pkg/database"
)

const truncateAll = `TRUNCATE users, courses, orders, enrollments, discount_redemptions, referral_usages,
	discount_codes, email_logs, form_submissions`

var (
	once     sync.Once
	dsn      string
	setupErr error
)

// New returns a pool on a freshly truncated schema. The pool is closed when t ends.
func New(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("repository tests need PostgreSQL")
	}
	once.Do(setup)
	if setupErr != nil {
		t.Skipf("postgres unavailable: %v", setupErr)
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, dsn, 8, nil)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, truncateAll)
	require.NoError(t, err)
	return pool
}

func setup() {
	defer func() {
		if r := recover(); r != nil {
			setupErr = fmt.Errorf("start postgres: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	base := os.Getenv("TEST_DATABASE_URL")
	if base == "" {
		c, err := postgres.RunContainer(ctx,
			testcontainers.WithImage("postgres:16-alpine"),
			postgres.WithDatabase("kampus_test"),
			postgres.WithUsername("kampus"),
			postgres.WithPassword("kampus"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
		if err != nil {
			setupErr = err
			return
		}
		if base, err = c.ConnectionString(ctx, "sslmode=disable"); err != nil {
			setupErr = err
			return
		}
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	admin, err := database.NewPostgresPool(ctx, base, 2, nil)
	if err != nil {
		setupErr = err
		return
	}
	defer admin.Close()
	if _, err := admin.Exec(ctx, "CREATE SCHEMA "+schema); err != nil {
		setupErr = err
		return
	}

	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	dsn = base + sep + "search_path=" + schema

	pool, err := database.NewPostgresPool(ctx, dsn, 2, nil)
	if err != nil {
		setupErr = err
		return
	}
	defer pool.Close()
	setupErr = database.Migrate(ctx, pool, nil)
}
