package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/internal/access"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/types"
)

// CreateOrderInput registers an order placed upstream.
type CreateOrderInput struct {
	CustomerID uuid.UUID
	Items      []types.OrderItem
	PlacedAt   *time.Time
	Caller     access.Caller
}

// UpdateStatusInput requests one order status transition. DeliveryOTP is
// required when moving to delivered and optional when shipping, where it
// replaces the generated code.
type UpdateStatusInput struct {
	OrderID     uuid.UUID
	Status      string
	DeliveryOTP *string
	Notes       *string
	Caller      access.Caller
}

// TransitionResult is the committed order and the audit entry written with it.
type TransitionResult struct {
	Order *models.Order
	Audit *models.AuditEntry
}
