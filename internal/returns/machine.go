package returns

import (
	"github.com/angelmondragon/fulfillment-backend/internal/workflow"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// Machine is the return request status graph. Rejected, completed and
// cancelled are terminal.
var Machine = workflow.New("return request", enums.ReturnStatusRequested,
	[]enums.ReturnStatus{enums.ReturnStatusRejected, enums.ReturnStatusCompleted, enums.ReturnStatusCancelled},
	workflow.Edge[enums.ReturnStatus]{
		From: enums.ReturnStatusRequested,
		To: []enums.ReturnStatus{
			enums.ReturnStatusAdminReview,
			enums.ReturnStatusApproved,
			enums.ReturnStatusRejected,
			enums.ReturnStatusCancelled,
		},
	},
	workflow.Edge[enums.ReturnStatus]{
		From: enums.ReturnStatusAdminReview,
		To:   []enums.ReturnStatus{enums.ReturnStatusApproved, enums.ReturnStatusRejected},
	},
	workflow.Edge[enums.ReturnStatus]{
		From: enums.ReturnStatusApproved,
		To:   []enums.ReturnStatus{enums.ReturnStatusWarehouseAssigned, enums.ReturnStatusPickupScheduled},
	},
	workflow.Edge[enums.ReturnStatus]{
		From: enums.ReturnStatusWarehouseAssigned,
		To:   []enums.ReturnStatus{enums.ReturnStatusPickupScheduled},
	},
	workflow.Edge[enums.ReturnStatus]{
		From: enums.ReturnStatusPickupScheduled,
		To:   []enums.ReturnStatus{enums.ReturnStatusPickedUp},
	},
	workflow.Edge[enums.ReturnStatus]{
		From: enums.ReturnStatusPickedUp,
		To:   []enums.ReturnStatus{enums.ReturnStatusInWarehouse},
	},
	workflow.Edge[enums.ReturnStatus]{
		From: enums.ReturnStatusInWarehouse,
		To:   []enums.ReturnStatus{enums.ReturnStatusQualityChecked},
	},
	workflow.Edge[enums.ReturnStatus]{
		From: enums.ReturnStatusQualityChecked,
		To:   []enums.ReturnStatus{enums.ReturnStatusRefundApproved, enums.ReturnStatusRejected},
	},
	workflow.Edge[enums.ReturnStatus]{
		From: enums.ReturnStatusRefundApproved,
		To:   []enums.ReturnStatus{enums.ReturnStatusRefundProcessed},
	},
	workflow.Edge[enums.ReturnStatus]{
		From: enums.ReturnStatusRefundProcessed,
		To:   []enums.ReturnStatus{enums.ReturnStatusCompleted},
	},
)

// pickupChargeSources are the post-approval, non-terminal statuses in which
// the pickup charge may still be changed.
var pickupChargeSources = []enums.ReturnStatus{
	enums.ReturnStatusApproved,
	enums.ReturnStatusWarehouseAssigned,
	enums.ReturnStatusPickupScheduled,
	enums.ReturnStatusPickedUp,
	enums.ReturnStatusInWarehouse,
	enums.ReturnStatusQualityChecked,
	enums.ReturnStatusRefundApproved,
	enums.ReturnStatusRefundProcessed,
}

// consumesOrderQty reports whether a return in status s still claims its
// items against the order. Rejected and cancelled returns release them.
func consumesOrderQty(s enums.ReturnStatus) bool {
	return s != enums.ReturnStatusRejected && s != enums.ReturnStatusCancelled
}
