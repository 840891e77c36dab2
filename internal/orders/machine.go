package orders

import (
	"github.com/angelmondragon/fulfillment-backend/internal/access"
	"github.com/angelmondragon/fulfillment-backend/internal/workflow"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// Machine is the order status graph. Delivered and cancelled are terminal.
var Machine = workflow.New("order", enums.OrderStatusPending,
	[]enums.OrderStatus{enums.OrderStatusDelivered, enums.OrderStatusCancelled},
	workflow.Edge[enums.OrderStatus]{
		From: enums.OrderStatusPending,
		To:   []enums.OrderStatus{enums.OrderStatusShipped, enums.OrderStatusCancelled},
	},
	workflow.Edge[enums.OrderStatus]{
		From: enums.OrderStatusShipped,
		To:   []enums.OrderStatus{enums.OrderStatusDelivered, enums.OrderStatusCancelled},
	},
)

// actionForTarget maps a requested status onto the permission it needs.
// Pending is never a valid target; it is gated like shipping so the caller
// learns about the illegal edge only if they could move the order at all.
func actionForTarget(target enums.OrderStatus) access.Action {
	switch target {
	case enums.OrderStatusDelivered:
		return access.ActionOrderDeliver
	case enums.OrderStatusCancelled:
		return access.ActionOrderCancel
	default:
		return access.ActionOrderShip
	}
}
