// Package testutil provides shared helpers for integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/licensegate/licensegate/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 731001

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// migrations lists the schema in apply order.
var migrations = []string{
	"000001_licenses",
	"000002_activation_events",
}

// ResetSchema drops every table and re-applies all migrations.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for i := len(migrations) - 1; i >= 0; i-- {
		if err := applyMigration(ctx, pool, migrations[i], "down"); err != nil {
			return err
		}
	}
	for _, name := range migrations {
		if err := applyMigration(ctx, pool, name, "up"); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, pool *pgxpool.Pool, name, direction string) error {
	root, err := ProjectRoot()
	if err != nil {
		return err
	}

	path := filepath.Join(root, "migrations", name+"."+direction+".sql")
	sql, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s migration %s: %w", direction, name, err)
	}
	if _, err := pool.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("apply %s migration %s: %w", direction, name, err)
	}
	return nil
}

// NewTestPool connects to DATABASE_URL, serializes against other DB tests and
// resets the schema. Cleanup is registered on t.
func NewTestPool(t testing.TB) (context.Context, *pgxpool.Pool) {
	t.Helper()

	dbURL := RequireEnv(t, "DATABASE_URL")
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	unlock, err := AcquireDBLock(ctx, pool)
	if err != nil {
		pool.Close()
		t.Fatalf("acquire db lock: %v", err)
	}

	t.Cleanup(func() {
		_ = unlock()
		pool.Close()
	})

	if err := ResetSchema(ctx, pool); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	return ctx, pool
}

// NewTestRedis connects to REDIS_URL and flushes the database.
func NewTestRedis(t testing.TB) *redis.Client {
	t.Helper()

	redisURL := RequireEnv(t, "REDIS_URL")
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}

	client := redis.NewClient(opt)
	t.Cleanup(func() { _ = client.Close() })

	if err := FlushRedis(context.Background(), client); err != nil {
		t.Fatalf("flush redis: %v", err)
	}

	return client
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// NewTestLicense creates an unused license with the given capacity.
func NewTestLicense(t testing.TB, key string, maxDevices int) *model.License {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &model.License{
		ID:         ulid.Make().String(),
		Key:        key,
		MaxDevices: maxDevices,
		UsedCount:  0,
		Devices:    []string{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// UniqueLicenseKey generates a unique license key for tests.
func UniqueLicenseKey(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
