package types

import (
	"time"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReturnItem is one line of a return request.
type ReturnItem struct {
	ProductID     uuid.UUID       `json:"productId"`
	VariantID     *uuid.UUID      `json:"variantId,omitempty"`
	Qty           int             `json:"qty"`
	OriginalPrice decimal.Decimal `json:"originalPrice"`
}

type PickupCharge struct {
	IsFree bool            `json:"isFree"`
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
	// Coins is Amount at the platform exchange rate, kept for display.
	Coins decimal.Decimal `json:"coins"`
}

type AdminReview struct {
	Approved      bool          `json:"approved"`
	AdminComments *string       `json:"adminComments,omitempty"`
	PickupCharge  *PickupCharge `json:"pickupCharge,omitempty"`
	ReviewedAt    time.Time     `json:"reviewedAt"`
	ReviewedBy    uuid.UUID     `json:"reviewedBy"`
}

type PickupSchedule struct {
	ScheduledDate string `json:"scheduledDate"`
	ScheduledSlot string `json:"scheduledSlot"`
}

type RefundEstimate struct {
	GrossAmount    decimal.Decimal `json:"grossAmount"`
	NetAmount      decimal.Decimal `json:"netAmount"`
	CoinEquivalent decimal.Decimal `json:"coinEquivalent"`
}

type QualityAssessment struct {
	QualityScore           int                     `json:"qualityScore"`
	ItemCondition          enums.ItemCondition     `json:"itemCondition"`
	RefundEligibility      enums.RefundEligibility `json:"refundEligibility"`
	RefundPercentage       decimal.Decimal         `json:"refundPercentage"`
	ConditionDetails       string                  `json:"conditionDetails,omitempty"`
	WarehouseNotes         string                  `json:"warehouseNotes,omitempty"`
	RequiresManualOverride bool                    `json:"requiresManualOverride"`
	Estimate               RefundEstimate          `json:"estimate"`
	AssessedAt             time.Time               `json:"assessedAt"`
	AssessedBy             uuid.UUID               `json:"assessedBy"`
}

type StatusUpdate struct {
	ToStatus  enums.ReturnStatus `json:"toStatus"`
	UpdatedAt time.Time          `json:"updatedAt"`
	Notes     *string            `json:"notes,omitempty"`
	UpdatedBy uuid.UUID          `json:"updatedBy"`
}

type WarehouseManagement struct {
	WarehouseID       *string            `json:"warehouseId,omitempty"`
	Pickup            *PickupSchedule    `json:"pickup,omitempty"`
	QualityAssessment *QualityAssessment `json:"qualityAssessment,omitempty"`
	StatusUpdates     []StatusUpdate     `json:"statusUpdates"`
	ReceivedAt        *time.Time         `json:"receivedAt,omitempty"`
	ReceivedCondition *string            `json:"receivedCondition,omitempty"`
}

type RefundDeduction struct {
	Type   enums.DeductionType `json:"type"`
	Amount decimal.Decimal     `json:"amount"`
	Reason string              `json:"reason,omitempty"`
}

type AdminDecision struct {
	Decision         enums.ReviewDecision `json:"decision"`
	FinalAmount      *decimal.Decimal     `json:"finalAmount,omitempty"`
	GrossAmount      decimal.Decimal      `json:"grossAmount"`
	RefundPercentage decimal.Decimal      `json:"refundPercentage"`
	NetAmount        decimal.Decimal      `json:"netAmount"`
	FinalCoins       decimal.Decimal      `json:"finalCoins"`
	Deductions       []RefundDeduction    `json:"deductions"`
	AdminNotes       *string              `json:"adminNotes,omitempty"`
	DecidedAt        time.Time            `json:"decidedAt"`
	DecidedBy        uuid.UUID            `json:"decidedBy"`
}

type RefundProcessing struct {
	CoinsCredited bool            `json:"coinsCredited"`
	CoinRefund    decimal.Decimal `json:"coinRefund"`
	ProcessedAt   time.Time       `json:"processedAt"`
	ProcessedBy   uuid.UUID       `json:"processedBy"`
}

type RefundRecord struct {
	AdminDecision *AdminDecision    `json:"adminDecision,omitempty"`
	Processing    *RefundProcessing `json:"processing,omitempty"`
}
