package returns

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/pagination"
)

// Repository defines persistence operations for the return_requests table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, ret *models.ReturnRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.ReturnRequest, error)
	List(ctx context.Context, filter ListFilter, page pagination.Params) (*ListResult, error)
	UpdateVersioned(ctx context.Context, ret *models.ReturnRequest, expectedVersion int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a repository backed by the provided gorm DB.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, ret *models.ReturnRequest) error {
	if ret == nil {
		return errors.New("return request required")
	}
	if ret.ID == uuid.Nil {
		ret.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(ret).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	var ret models.ReturnRequest
	if err := r.db.WithContext(ctx).First(&ret, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &ret, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.ReturnRequest, error) {
	var rets []models.ReturnRequest
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rets).Error
	if err != nil {
		return nil, err
	}
	return rets, nil
}

// List pages newest first. The cursor is the last row of the previous page.
func (r *repository) List(ctx context.Context, filter ListFilter, page pagination.Params) (*ListResult, error) {
	scope := filter.scope()
	cursor, err := pagination.Decode(page.Cursor, scope)
	if err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).Model(&models.ReturnRequest{})
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.OrderID != nil {
		query = query.Where("order_id = ?", *filter.OrderID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var rets []models.ReturnRequest
	if err := pagination.NewestFirst(query, cursor, page.Limit).Find(&rets).Error; err != nil {
		return nil, err
	}

	items, next := pagination.Trim(rets, page.Limit, scope, func(ret models.ReturnRequest) (time.Time, uuid.UUID) {
		return ret.CreatedAt, ret.ID
	})
	return &ListResult{Items: items, NextCursor: next}, nil
}

// UpdateVersioned persists ret if the stored version still equals
// expectedVersion. ret.Version must already hold the new value.
func (r *repository) UpdateVersioned(ctx context.Context, ret *models.ReturnRequest, expectedVersion int) error {
	return db.UpdateVersioned(ctx, r.db, ret, expectedVersion)
}
