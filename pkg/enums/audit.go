package enums

// EntityType names the aggregate an audit entry belongs to.
type EntityType string

const (
	EntityOrder         EntityType = "order"
	EntityReturnRequest EntityType = "return_request"
)

func (e EntityType) String() string {
	return string(e)
}

// AuditAction is the operation recorded on an audit entry.
type AuditAction string

const (
	ActionOrderCreated        AuditAction = "order_created"
	ActionOrderStatusChanged  AuditAction = "order_status_changed"
	ActionReturnCreated       AuditAction = "return_created"
	ActionReturnReviewStarted AuditAction = "review_started"
	ActionReturnReviewed      AuditAction = "reviewed"
	ActionWarehouseAssigned   AuditAction = "warehouse_assigned"
	ActionPickupScheduled     AuditAction = "pickup_scheduled"
	ActionPickedUp            AuditAction = "picked_up"
	ActionReceived            AuditAction = "received"
	ActionAssessed            AuditAction = "assessed"
	ActionFinalDecision       AuditAction = "final_decision"
	ActionRefundProcessed     AuditAction = "refund_processed"
	ActionCompleted           AuditAction = "completed"
	ActionCancelled           AuditAction = "cancelled"
	ActionPickupChargeUpdated AuditAction = "pickup_charge_updated"
)

func (a AuditAction) String() string {
	return string(a)
}
