package payloads

import (
	"time"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderCreatedEvent records order intake.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	CustomerID  uuid.UUID       `json:"customer_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	ItemCount   int             `json:"item_count"`
	PlacedAt    time.Time       `json:"placed_at"`
}

// OrderShippedEvent carries the delivery code to the customer messaging
// service. This is the only place the plaintext code leaves the service.
type OrderShippedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	CustomerID  uuid.UUID `json:"customer_id"`
	DeliveryOTP string    `json:"delivery_otp"`
	ShippedAt   time.Time `json:"shipped_at"`
}

// OrderStatusChangedEvent is emitted for every order status transition.
type OrderStatusChangedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	CustomerID    uuid.UUID           `json:"customer_id"`
	FromStatus    enums.OrderStatus   `json:"from_status"`
	ToStatus      enums.OrderStatus   `json:"to_status"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	AuditEntryID  uuid.UUID           `json:"audit_entry_id"`
	ChangedAt     time.Time           `json:"changed_at"`
}

type ReturnCreatedEvent struct {
	ReturnID    uuid.UUID `json:"return_id"`
	OrderID     uuid.UUID `json:"order_id"`
	CustomerID  uuid.UUID `json:"customer_id"`
	ItemCount   int       `json:"item_count"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// ReturnStatusChangedEvent feeds the customer-facing return timeline.
type ReturnStatusChangedEvent struct {
	ReturnID     uuid.UUID          `json:"return_id"`
	OrderID      uuid.UUID          `json:"order_id"`
	CustomerID   uuid.UUID          `json:"customer_id"`
	Action       enums.AuditAction  `json:"action"`
	FromStatus   enums.ReturnStatus `json:"from_status"`
	ToStatus     enums.ReturnStatus `json:"to_status"`
	Notes        *string            `json:"notes,omitempty"`
	AuditEntryID uuid.UUID          `json:"audit_entry_id"`
	ChangedAt    time.Time          `json:"changed_at"`
}

// RefundCreditedEvent asks the wallet to credit coins. Downstream must dedupe
// on return_id since the credit happens once per return.
type RefundCreditedEvent struct {
	ReturnID    uuid.UUID       `json:"return_id"`
	CustomerID  uuid.UUID       `json:"customer_id"`
	NetAmount   decimal.Decimal `json:"net_amount"`
	CoinRefund  decimal.Decimal `json:"coin_refund"`
	ProcessedAt time.Time       `json:"processed_at"`
}

type PickupChargeUpdatedEvent struct {
	ReturnID   uuid.UUID       `json:"return_id"`
	CustomerID uuid.UUID       `json:"customer_id"`
	IsFree     bool            `json:"is_free"`
	Amount     decimal.Decimal `json:"amount"`
	Coins      decimal.Decimal `json:"coins"`
	Reason     string          `json:"reason"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
