package db

import (
	"errors"

	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
)

// IsNotFound reports whether err is gorm's record-not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// ClassifyReadError maps a repository read error onto the public taxonomy.
// Transient failures are left untouched so the retrier can see them.
func ClassifyReadError(err error, entity string) error {
	if err == nil {
		return nil
	}
	if IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, entity+" not found")
	}
	return err
}
