package enums

import "fmt"

// ReturnStatus tracks a return request through review, warehouse handling and refund.
type ReturnStatus string

const (
	ReturnStatusRequested         ReturnStatus = "requested"
	ReturnStatusAdminReview       ReturnStatus = "admin_review"
	ReturnStatusApproved          ReturnStatus = "approved"
	ReturnStatusRejected          ReturnStatus = "rejected"
	ReturnStatusWarehouseAssigned ReturnStatus = "warehouse_assigned"
	ReturnStatusPickupScheduled   ReturnStatus = "pickup_scheduled"
	ReturnStatusPickedUp          ReturnStatus = "picked_up"
	ReturnStatusInWarehouse       ReturnStatus = "in_warehouse"
	ReturnStatusQualityChecked    ReturnStatus = "quality_checked"
	ReturnStatusRefundApproved    ReturnStatus = "refund_approved"
	ReturnStatusRefundProcessed   ReturnStatus = "refund_processed"
	ReturnStatusCompleted         ReturnStatus = "completed"
	ReturnStatusCancelled         ReturnStatus = "cancelled"
)

var validReturnStatuses = []ReturnStatus{
	ReturnStatusRequested,
	ReturnStatusAdminReview,
	ReturnStatusApproved,
	ReturnStatusRejected,
	ReturnStatusWarehouseAssigned,
	ReturnStatusPickupScheduled,
	ReturnStatusPickedUp,
	ReturnStatusInWarehouse,
	ReturnStatusQualityChecked,
	ReturnStatusRefundApproved,
	ReturnStatusRefundProcessed,
	ReturnStatusCompleted,
	ReturnStatusCancelled,
}

// String implements fmt.Stringer.
func (r ReturnStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReturnStatus.
func (r ReturnStatus) IsValid() bool {
	for _, candidate := range validReturnStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseReturnStatus converts raw input into a ReturnStatus.
func ParseReturnStatus(value string) (ReturnStatus, error) {
	for _, candidate := range validReturnStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return status %q", value)
}

// ReviewDecision is the admin verdict on a return request or its refund.
type ReviewDecision string

const (
	DecisionApproved ReviewDecision = "approved"
	DecisionRejected ReviewDecision = "rejected"
)

func (d ReviewDecision) IsValid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// ParseReviewDecision converts raw input into a ReviewDecision.
func ParseReviewDecision(value string) (ReviewDecision, error) {
	d := ReviewDecision(value)
	if !d.IsValid() {
		return "", fmt.Errorf("invalid decision %q", value)
	}
	return d, nil
}
