// Package access decides which caller may invoke which workflow operation.
package access

import (
	"fmt"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox"
	"github.com/google/uuid"
)

// Caller is the identity resolved once per request from a verified credential.
type Caller struct {
	UserID uuid.UUID
	Role   enums.Role
	Access enums.AccessLevel
}

// IsStaff reports whether the caller is an admin or sub-admin.
func (c Caller) IsStaff() bool {
	return c.Role == enums.RoleAdmin || c.Role == enums.RoleSubAdmin
}

// Actor is the caller as recorded on outbox events.
func (c Caller) Actor() *outbox.ActorRef {
	return &outbox.ActorRef{UserID: c.UserID, Role: string(c.Role), Access: string(c.Access)}
}

func (c Caller) canWriteLogistics() bool {
	return c.Role == enums.RoleSubAdmin && c.Access == enums.AccessReadWrite
}

type Action string

const (
	ActionOrderCreate  Action = "order.create"
	ActionOrderRead    Action = "order.read"
	ActionOrderShip    Action = "order.ship"
	ActionOrderDeliver Action = "order.deliver"
	ActionOrderCancel  Action = "order.cancel"

	ActionReturnCreate          Action = "return.create"
	ActionReturnRead            Action = "return.read"
	ActionReturnList            Action = "return.list"
	ActionReturnStartReview     Action = "return.start_review"
	ActionReturnReview          Action = "return.review"
	ActionReturnAssignWarehouse Action = "return.assign_warehouse"
	ActionReturnSchedulePickup  Action = "return.schedule_pickup"
	ActionReturnMarkPickedUp    Action = "return.mark_picked_up"
	ActionReturnReceive         Action = "return.receive"
	ActionReturnAssess          Action = "return.assess"
	ActionReturnFinalDecision   Action = "return.final_decision"
	ActionReturnProcessRefund   Action = "return.process_refund"
	ActionReturnComplete        Action = "return.complete"
	ActionReturnCancel          Action = "return.cancel"
	ActionReturnPickupCharge    Action = "return.pickup_charge"

	ActionRefundQuote Action = "refund.quote"
)

// rule lists who may perform an action. Customers are always limited to
// entities they own.
type rule struct {
	mutating  bool
	admin     bool
	logistics bool
	staffRead bool
	customer  bool
}

var rules = map[Action]rule{
	ActionOrderCreate:  {mutating: true, admin: true},
	ActionOrderRead:    {admin: true, staffRead: true, customer: true},
	ActionOrderShip:    {mutating: true, admin: true, logistics: true},
	ActionOrderDeliver: {mutating: true, admin: true, logistics: true},
	ActionOrderCancel:  {mutating: true, admin: true, logistics: true},

	ActionReturnCreate:          {mutating: true, customer: true},
	ActionReturnRead:            {admin: true, staffRead: true, customer: true},
	ActionReturnList:            {admin: true, staffRead: true, customer: true},
	ActionReturnStartReview:     {mutating: true, admin: true},
	ActionReturnReview:          {mutating: true, admin: true},
	ActionReturnAssignWarehouse: {mutating: true, admin: true, logistics: true},
	ActionReturnSchedulePickup:  {mutating: true, admin: true, logistics: true},
	ActionReturnMarkPickedUp:    {mutating: true, admin: true, logistics: true},
	ActionReturnReceive:         {mutating: true, admin: true, logistics: true},
	ActionReturnAssess:          {mutating: true, admin: true, logistics: true},
	ActionReturnFinalDecision:   {mutating: true, admin: true},
	ActionReturnProcessRefund:   {mutating: true, admin: true},
	ActionReturnComplete:        {mutating: true, admin: true},
	ActionReturnCancel:          {mutating: true, customer: true},
	ActionReturnPickupCharge:    {mutating: true, admin: true, logistics: true},

	ActionRefundQuote: {admin: true, staffRead: true, customer: true},
}

// IsMutating reports whether the action changes state.
func IsMutating(action Action) bool {
	return rules[action].mutating
}

// Allowed reports whether caller may perform action on an entity owned by
// ownerID. Pass uuid.Nil when the action is not scoped to an owner.
func Allowed(caller Caller, action Action, ownerID uuid.UUID) bool {
	r, ok := rules[action]
	if !ok || caller.UserID == uuid.Nil {
		return false
	}
	switch caller.Role {
	case enums.RoleAdmin:
		return r.admin
	case enums.RoleSubAdmin:
		if r.logistics && caller.canWriteLogistics() {
			return true
		}
		return !r.mutating && r.staffRead
	case enums.RoleCustomer:
		if !r.customer {
			return false
		}
		return ownerID == uuid.Nil || ownerID == caller.UserID
	default:
		return false
	}
}

// Authorize is Allowed returning a PERMISSION_DENIED error on refusal.
func Authorize(caller Caller, action Action, ownerID uuid.UUID) error {
	if Allowed(caller, action, ownerID) {
		return nil
	}
	role := string(caller.Role)
	if caller.Access != "" {
		role = fmt.Sprintf("%s:%s", caller.Role, caller.Access)
	}
	return pkgerrors.New(pkgerrors.CodePermissionDenied, fmt.Sprintf("%s may not perform %s", role, action)).
		WithDetails(map[string]any{"action": string(action), "role": role})
}
