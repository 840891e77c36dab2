package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/types"
)

// ReturnRequest is a customer return moving through review, warehouse handling
// and refund. Rows are never deleted.
type ReturnRequest struct {
	ID                  uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	OrderID             uuid.UUID                 `gorm:"column:order_id;type:uuid;not null"`
	CustomerID          uuid.UUID                 `gorm:"column:customer_id;type:uuid;not null"`
	Items               []types.ReturnItem        `gorm:"column:items;type:jsonb;serializer:json;not null"`
	ReturnReason        string                    `gorm:"column:return_reason;not null"`
	CustomerComments    *string                   `gorm:"column:customer_comments"`
	EvidenceImages      []string                  `gorm:"column:evidence_images;type:jsonb;serializer:json;not null"`
	Status              enums.ReturnStatus        `gorm:"column:status;type:return_status;not null;default:'requested'"`
	RequestedAt         time.Time                 `gorm:"column:requested_at;not null"`
	AdminReview         *types.AdminReview        `gorm:"column:admin_review;type:jsonb;serializer:json"`
	WarehouseManagement types.WarehouseManagement `gorm:"column:warehouse_management;type:jsonb;serializer:json;not null"`
	Refund              *types.RefundRecord       `gorm:"column:refund;type:jsonb;serializer:json"`
	Version             int                       `gorm:"column:version;not null;default:1"`
	CreatedAt           time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}
