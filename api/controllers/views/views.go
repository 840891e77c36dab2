// Package views shapes stored entities into API responses.
package views

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/types"
)

type Audit struct {
	ID          uuid.UUID         `json:"id"`
	EntityType  enums.EntityType  `json:"entityType"`
	EntityID    uuid.UUID         `json:"entityId"`
	Action      enums.AuditAction `json:"action"`
	FromStatus  *string           `json:"fromStatus,omitempty"`
	ToStatus    *string           `json:"toStatus,omitempty"`
	ActorUserID uuid.UUID         `json:"actorUserId"`
	ActorRole   enums.Role        `json:"actorRole"`
	ActorAccess *string           `json:"actorAccess,omitempty"`
	Notes       *string           `json:"notes,omitempty"`
	Payload     map[string]any    `json:"payload,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

func NewAudit(entry *models.AuditEntry) *Audit {
	if entry == nil {
		return nil
	}
	return &Audit{
		ID:          entry.ID,
		EntityType:  entry.EntityType,
		EntityID:    entry.EntityID,
		Action:      entry.Action,
		FromStatus:  entry.FromStatus,
		ToStatus:    entry.ToStatus,
		ActorUserID: entry.ActorUserID,
		ActorRole:   entry.ActorRole,
		ActorAccess: entry.ActorAccess,
		Notes:       entry.Notes,
		Payload:     entry.Payload,
		CreatedAt:   entry.CreatedAt,
	}
}

func NewAuditList(entries []models.AuditEntry) []Audit {
	out := make([]Audit, 0, len(entries))
	for i := range entries {
		out = append(out, *NewAudit(&entries[i]))
	}
	return out
}

// Order never exposes the delivery code hash.
type Order struct {
	ID            uuid.UUID           `json:"id"`
	CustomerID    uuid.UUID           `json:"customerId"`
	Items         []types.OrderItem   `json:"items"`
	TotalAmount   decimal.Decimal     `json:"totalAmount"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentStatus enums.PaymentStatus `json:"paymentStatus"`
	PlacedAt      time.Time           `json:"placedAt"`
	ShippedAt     *time.Time          `json:"shippedAt,omitempty"`
	DeliveredAt   *time.Time          `json:"deliveredAt,omitempty"`
	CancelledAt   *time.Time          `json:"cancelledAt,omitempty"`
	Version       int                 `json:"version"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

func NewOrder(o *models.Order) *Order {
	if o == nil {
		return nil
	}
	return &Order{
		ID:            o.ID,
		CustomerID:    o.CustomerID,
		Items:         o.Items,
		TotalAmount:   o.TotalAmount,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		PlacedAt:      o.PlacedAt,
		ShippedAt:     o.ShippedAt,
		DeliveredAt:   o.DeliveredAt,
		CancelledAt:   o.CancelledAt,
		Version:       o.Version,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

type Return struct {
	ID                  uuid.UUID                 `json:"id"`
	OrderID             uuid.UUID                 `json:"orderId"`
	CustomerID          uuid.UUID                 `json:"customerId"`
	Items               []types.ReturnItem        `json:"items"`
	ReturnReason        string                    `json:"returnReason"`
	CustomerComments    *string                   `json:"customerComments,omitempty"`
	EvidenceImages      []string                  `json:"evidenceImages"`
	Status              enums.ReturnStatus        `json:"status"`
	RequestedAt         time.Time                 `json:"requestedAt"`
	AdminReview         *types.AdminReview        `json:"adminReview,omitempty"`
	WarehouseManagement types.WarehouseManagement `json:"warehouseManagement"`
	Refund              *types.RefundRecord       `json:"refund,omitempty"`
	Version             int                       `json:"version"`
	CreatedAt           time.Time                 `json:"createdAt"`
	UpdatedAt           time.Time                 `json:"updatedAt"`
}

func NewReturn(r *models.ReturnRequest) *Return {
	if r == nil {
		return nil
	}
	return &Return{
		ID:                  r.ID,
		OrderID:             r.OrderID,
		CustomerID:          r.CustomerID,
		Items:               r.Items,
		ReturnReason:        r.ReturnReason,
		CustomerComments:    r.CustomerComments,
		EvidenceImages:      r.EvidenceImages,
		Status:              r.Status,
		RequestedAt:         r.RequestedAt,
		AdminReview:         r.AdminReview,
		WarehouseManagement: r.WarehouseManagement,
		Refund:              r.Refund,
		Version:             r.Version,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

// Transition is the body of every mutating endpoint. Audit is omitted when
// the request changed nothing.
type Transition struct {
	Entity any    `json:"entity"`
	Audit  *Audit `json:"audit,omitempty"`
}
