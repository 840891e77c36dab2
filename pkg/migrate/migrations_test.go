package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/fulfillment-backend/pkg/migrate"
)

func TestMigrationDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("ValidateDir: %v", err)
	}
	if err := migrate.ValidateDir(""); err != nil {
		t.Fatalf("embedded migrations: %v", err)
	}
}

func TestEmbeddedMatchesDisk(t *testing.T) {
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	embedded, err := fs.Glob(migrate.Embedded(), "*.sql")
	if err != nil {
		t.Fatalf("embedded glob: %v", err)
	}
	if len(onDisk) != len(embedded) {
		t.Fatalf("embedded set has %d files, disk has %d", len(embedded), len(onDisk))
	}
}

func TestSchemaMigrationsContainLifecycleTables(t *testing.T) {
	cases := map[string][]string{
		"*_create_enum_types.sql": {
			"CREATE TYPE order_status AS ENUM ('pending', 'shipped', 'delivered', 'cancelled')",
			"CREATE TYPE payment_status AS ENUM ('pending', 'paid')",
			"'quality_checked'",
			"'refund_processed'",
			"CREATE TYPE audit_entity_type AS ENUM ('order', 'return_request')",
		},
		"*_create_orders.sql": {
			"CREATE TABLE IF NOT EXISTS orders",
			"delivery_otp_hash text",
			"version integer NOT NULL DEFAULT 1",
			"DROP TABLE IF EXISTS orders",
		},
		"*_create_return_requests.sql": {
			"CREATE TABLE IF NOT EXISTS return_requests",
			"FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE RESTRICT",
			"warehouse_management jsonb NOT NULL",
			"version integer NOT NULL DEFAULT 1",
		},
		"*_create_audit_entries.sql": {
			"CREATE TABLE IF NOT EXISTS audit_entries",
			"BEFORE UPDATE OR DELETE ON audit_entries",
		},
		"*_create_outbox.sql": {
			"CREATE TABLE IF NOT EXISTS outbox_events",
			"CREATE TABLE IF NOT EXISTS outbox_dlq",
			"WHERE published_at IS NULL",
		},
	}

	for pattern, checks := range cases {
		matches, err := filepath.Glob(filepath.Join("migrations", pattern))
		if err != nil {
			t.Fatalf("glob %s: %v", pattern, err)
		}
		if len(matches) != 1 {
			t.Fatalf("expected one migration for %s, got %d", pattern, len(matches))
		}
		data, err := os.ReadFile(matches[0])
		if err != nil {
			t.Fatalf("read %s: %v", matches[0], err)
		}
		content := string(data)
		for _, sub := range checks {
			if !strings.Contains(content, sub) {
				t.Errorf("%s missing expected statement %q", matches[0], sub)
			}
		}
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Pickup Slots!")
	if err != nil {
		t.Fatalf("CreateSQLMigration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_pickup_slots.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
	if _, err := migrate.CreateSQLMigration(dir, "!!!"); err == nil {
		t.Fatal("expected error for name that sanitizes to empty")
	}
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "001_bad.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatal("expected invalid filename error")
	}
}
