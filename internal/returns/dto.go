package returns

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fulfillment-backend/internal/access"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/pagination"
)

// ItemInput selects an order line to return. The price comes from the order.
type ItemInput struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Qty       int
}

type CreateInput struct {
	OrderID          uuid.UUID
	Items            []ItemInput
	Reason           string
	CustomerComments *string
	EvidenceImages   []string
	Caller           access.Caller
}

// PickupChargeInput sets the pickup fee. Amount is ignored when IsFree and
// may be omitted to keep the current amount.
type PickupChargeInput struct {
	IsFree bool
	Amount *decimal.Decimal
	Reason string
}

type ReviewInput struct {
	ReturnID      uuid.UUID
	Decision      string
	AdminComments *string
	PickupCharge  *PickupChargeInput
	Caller        access.Caller
}

// NoteInput covers the transitions whose only payload is an optional note.
type NoteInput struct {
	ReturnID uuid.UUID
	Notes    *string
	Caller   access.Caller
}

type AssignWarehouseInput struct {
	ReturnID    uuid.UUID
	WarehouseID string
	Notes       *string
	Caller      access.Caller
}

type SchedulePickupInput struct {
	ReturnID      uuid.UUID
	ScheduledDate string
	ScheduledSlot string
	Notes         *string
	Caller        access.Caller
}

type ReceiveInput struct {
	ReturnID   uuid.UUID
	ReceivedAt time.Time
	Condition  string
	Notes      *string
	Caller     access.Caller
}

type AssessInput struct {
	ReturnID         uuid.UUID
	QualityScore     int
	ItemCondition    string
	RefundPercentage *decimal.Decimal
	WarehouseNotes   string
	ConditionDetails string
	Caller           access.Caller
}

type DeductionInput struct {
	Type   string
	Amount decimal.Decimal
	Reason string
}

type FinalDecisionInput struct {
	ReturnID    uuid.UUID
	Decision    string
	FinalAmount *decimal.Decimal
	Deductions  []DeductionInput
	AdminNotes  *string
	Caller      access.Caller
}

type UpdatePickupChargeInput struct {
	ReturnID uuid.UUID
	Charge   PickupChargeInput
	Caller   access.Caller
}

type ListInput struct {
	Caller     access.Caller
	Status     string
	OrderID    *uuid.UUID
	CustomerID *uuid.UUID
	Page       pagination.Params
}

// ListFilter narrows a repository listing. Nil fields are not applied.
type ListFilter struct {
	CustomerID *uuid.UUID
	OrderID    *uuid.UUID
	Status     *enums.ReturnStatus
}

// scope fingerprints the filter so a cursor cannot be replayed against a
// different one.
func (f ListFilter) scope() string {
	var customer, order, status string
	if f.CustomerID != nil {
		customer = f.CustomerID.String()
	}
	if f.OrderID != nil {
		order = f.OrderID.String()
	}
	if f.Status != nil {
		status = string(*f.Status)
	}
	return pagination.Scope(customer, order, status)
}

type ListResult struct {
	Items      []models.ReturnRequest
	NextCursor string
}

// TransitionResult is the committed return request and the audit entry
// written with it. Audit is nil when the request changed nothing.
type TransitionResult struct {
	Return *models.ReturnRequest
	Audit  *models.AuditEntry
}
