package db

import (
	"context"

	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
)

// UpdateVersioned writes every column of model (which must carry its primary
// key and the already-incremented version) only if the stored row still has
// expectedVersion. A miss means another writer got there first.
func UpdateVersioned(ctx context.Context, conn *gorm.DB, model any, expectedVersion int) error {
	res := conn.WithContext(ctx).
		Model(model).
		Where("version = ?", expectedVersion).
		Select("*").
		Omit("id", "created_at").
		Updates(model)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConcurrentModification, "entity changed since it was read; reload and retry")
	}
	return nil
}
