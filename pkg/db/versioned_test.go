package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
)

type versionedRow struct {
	ID      uuid.UUID `gorm:"type:text;primaryKey"`
	Status  string
	Version int
}

func TestUpdateVersioned(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&versionedRow{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()
	row := versionedRow{ID: uuid.New(), Status: "requested", Version: 1}
	if err := conn.Create(&row).Error; err != nil {
		t.Fatalf("create: %v", err)
	}

	first := row
	first.Status = "approved"
	first.Version = 2
	if err := UpdateVersioned(ctx, conn, &first, 1); err != nil {
		t.Fatalf("first update: %v", err)
	}

	stale := row
	stale.Status = "rejected"
	stale.Version = 2
	err = UpdateVersioned(ctx, conn, &stale, 1)
	if !pkgerrors.IsCode(err, pkgerrors.CodeConcurrentModification) {
		t.Fatalf("expected concurrent modification, got %v", err)
	}

	var stored versionedRow
	if err := conn.First(&stored, "id = ?", row.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Status != "approved" || stored.Version != 2 {
		t.Fatalf("stale write leaked: %+v", stored)
	}
}
