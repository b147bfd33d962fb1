package postgres

import (
	"context"
	"testing"
	"time"
)

func assertMigrationStatus(t *testing.T, store *Store, wantVersion int64, wantCount int) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	version, count, err := store.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("migration status: %v", err)
	}
	if version != wantVersion || count != wantCount {
		t.Fatalf("unexpected status: version=%d count=%d, want version=%d count=%d", version, count, wantVersion, wantCount)
	}
}

func TestMigrator_PostgresLifecycle(t *testing.T) {
	store := openRawStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := store.MigrateDown(ctx, 100); err != nil {
		t.Fatalf("reset migrations: %v", err)
	}
	assertMigrationStatus(t, store, 0, 0)

	if err := store.MigrateUp(ctx, 1); err != nil {
		t.Fatalf("migrate up one step: %v", err)
	}
	assertMigrationStatus(t, store, 1, 1)

	if err := store.MigrateUp(ctx, 0); err != nil {
		t.Fatalf("migrate up all: %v", err)
	}
	assertMigrationStatus(t, store, 2, 2)

	if err := store.MigrateUp(ctx, 0); err != nil {
		t.Fatalf("repeated migrate up: %v", err)
	}
	assertMigrationStatus(t, store, 2, 2)

	if err := store.MigrateDown(ctx, 0); err != nil {
		t.Fatalf("migrate down default step: %v", err)
	}
	assertMigrationStatus(t, store, 1, 1)

	if err := store.MigrateDown(ctx, 5); err != nil {
		t.Fatalf("migrate down rest: %v", err)
	}
	assertMigrationStatus(t, store, 0, 0)

	if err := store.MigrateDown(ctx, 1); err != nil {
		t.Fatalf("migrate down on empty schema should be a no-op: %v", err)
	}
}

func TestMigrator_UnsupportedDirection(t *testing.T) {
	store := &Store{}
	if err := store.migrate(context.Background(), migrationDirection("sideways"), 0); err == nil {
		t.Fatal("expected error for uninitialized store")
	}

	raw := openRawStore(t)
	if err := raw.migrate(context.Background(), migrationDirection("sideways"), 0); err == nil {
		t.Fatal("expected unsupported direction error")
	}
}
