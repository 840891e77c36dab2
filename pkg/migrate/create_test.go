package migrate

import (
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"
)

func TestCreateAtWritesValidMigration(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)

	path, err := createAt(dir, "  Add Return Index!! ", now)
	if err != nil {
		t.Fatalf("createAt: %v", err)
	}
	if filepath.Base(path) != "20261001093000_add_return_index.sql" {
		t.Fatalf("unexpected filename %s", filepath.Base(path))
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}

	if _, err := createAt(dir, "add return index", now); err == nil {
		t.Fatalf("expected collision error")
	}
	if _, err := createAt(dir, "!!!", now); err == nil {
		t.Fatalf("expected error for empty slug")
	}
}

func TestValidateRejectsBrokenFiles(t *testing.T) {
	const good = "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose StatementEnd\n-- +goose Down\nSELECT 1;\n"
	cases := map[string]fstest.MapFS{
		"bad name":      {"1_x.sql": {Data: []byte(good)}},
		"duplicate":     {"20260101000000_a.sql": {Data: []byte(good)}, "20260101000000_b.sql": {Data: []byte(good)}},
		"no down":       {"20260101000000_a.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")}},
		"swapped":       {"20260101000000_a.sql": {Data: []byte("-- +goose Down\n-- +goose Up\n")}},
		"unbalanced":    {"20260101000000_a.sql": {Data: []byte("-- +goose Up\n-- +goose StatementBegin\n-- +goose Down\n")}},
		"no migrations": {"README.md": {Data: []byte("docs")}},
	}
	for name, fsys := range cases {
		if err := Validate(fsys); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	if err := Validate(fstest.MapFS{"20260101000000_a.sql": {Data: []byte(good)}}); err != nil {
		t.Fatalf("good migration rejected: %v", err)
	}
}
