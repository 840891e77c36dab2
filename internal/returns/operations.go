package returns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fulfillment-backend/internal/access"
	"github.com/angelmondragon/fulfillment-backend/internal/refund"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/fulfillment-backend/pkg/types"
)

const (
	pickupDateLayout = "2006-01-02"
	// receiptClockSkew tolerates warehouse clocks slightly ahead of ours.
	receiptClockSkew = 5 * time.Minute
)

func (s *service) StartReview(ctx context.Context, input NoteInput) (*TransitionResult, error) {
	from := []enums.ReturnStatus{enums.ReturnStatusRequested}
	return s.run(ctx, step{
		name:        "start_review",
		action:      access.ActionReturnStartReview,
		auditAction: enums.ActionReturnReviewStarted,
		returnID:    input.ReturnID,
		caller:      input.Caller,
		notes:       input.Notes,
		from:        from,
		apply: func(cur, next *models.ReturnRequest, now time.Time) (map[string]any, error) {
			if err := moveTo(cur, next, enums.ReturnStatusAdminReview, from...); err != nil {
				return nil, err
			}
			return nil, nil
		},
	})
}

func (s *service) Review(ctx context.Context, input ReviewInput) (*TransitionResult, error) {
	from := []enums.ReturnStatus{enums.ReturnStatusRequested, enums.ReturnStatusAdminReview}
	var (
		decision enums.ReviewDecision
		charge   *types.PickupCharge
	)
	return s.run(ctx, step{
		name:        "review",
		action:      access.ActionReturnReview,
		auditAction: enums.ActionReturnReviewed,
		returnID:    input.ReturnID,
		caller:      input.Caller,
		notes:       input.AdminComments,
		from:        from,
		check: func() error {
			d, err := enums.ParseReviewDecision(strings.TrimSpace(input.Decision))
			if err != nil {
				return invalid(err.Error(), "decision")
			}
			decision = d
			if decision == enums.DecisionRejected {
				return nil
			}
			if input.PickupCharge == nil {
				return invalid("pickupCharge is required to approve a return", "pickupCharge")
			}
			resolved, err := resolvePickupCharge(*input.PickupCharge, nil)
			if err != nil {
				return err
			}
			charge = &resolved
			return nil
		},
		apply: func(cur, next *models.ReturnRequest, now time.Time) (map[string]any, error) {
			target := enums.ReturnStatusRejected
			if decision == enums.DecisionApproved {
				target = enums.ReturnStatusApproved
			}
			if err := moveTo(cur, next, target, from...); err != nil {
				return nil, err
			}
			next.AdminReview = &types.AdminReview{
				Approved:      decision == enums.DecisionApproved,
				AdminComments: input.AdminComments,
				PickupCharge:  charge,
				ReviewedAt:    now,
				ReviewedBy:    input.Caller.UserID,
			}
			payload := map[string]any{"decision": string(decision)}
			if charge != nil {
				payload["pickupCharge"] = chargePayload(*charge)
			}
			return payload, nil
		},
	})
}

func (s *service) AssignWarehouse(ctx context.Context, input AssignWarehouseInput) (*TransitionResult, error) {
	from := []enums.ReturnStatus{enums.ReturnStatusApproved}
	warehouseID := strings.TrimSpace(input.WarehouseID)
	return s.run(ctx, step{
		name:        "assign_warehouse",
		action:      access.ActionReturnAssignWarehouse,
		auditAction: enums.ActionWarehouseAssigned,
		returnID:    input.ReturnID,
		caller:      input.Caller,
		notes:       input.Notes,
		from:        from,
		check: func() error {
			if warehouseID == "" {
				return invalid("warehouseId required", "warehouseId")
			}
			return nil
		},
		apply: func(cur, next *models.ReturnRequest, now time.Time) (map[string]any, error) {
			if err := moveTo(cur, next, enums.ReturnStatusWarehouseAssigned, from...); err != nil {
				return nil, err
			}
			next.WarehouseManagement.WarehouseID = &warehouseID
			appendStatusUpdate(next, now, input.Notes, input.Caller.UserID)
			return map[string]any{"warehouseId": warehouseID}, nil
		},
	})
}

func (s *service) SchedulePickup(ctx context.Context, input SchedulePickupInput) (*TransitionResult, error) {
	from := []enums.ReturnStatus{enums.ReturnStatusApproved, enums.ReturnStatusWarehouseAssigned}
	date := strings.TrimSpace(input.ScheduledDate)
	slot := strings.TrimSpace(input.ScheduledSlot)
	return s.run(ctx, step{
		name:        "schedule_pickup",
		action:      access.ActionReturnSchedulePickup,
		auditAction: enums.ActionPickupScheduled,
		returnID:    input.ReturnID,
		caller:      input.Caller,
		notes:       input.Notes,
		from:        from,
		check: func() error {
			day, err := time.Parse(pickupDateLayout, date)
			if err != nil {
				return invalid("scheduledDate must be YYYY-MM-DD", "scheduledDate")
			}
			today := s.now().Truncate(24 * time.Hour)
			if day.Before(today) {
				return invalid("scheduledDate must not be in the past", "scheduledDate")
			}
			if slot == "" {
				return invalid("scheduledSlot required", "scheduledSlot")
			}
			return nil
		},
		apply: func(cur, next *models.ReturnRequest, now time.Time) (map[string]any, error) {
			if err := moveTo(cur, next, enums.ReturnStatusPickupScheduled, from...); err != nil {
				return nil, err
			}
			next.WarehouseManagement.Pickup = &types.PickupSchedule{ScheduledDate: date, ScheduledSlot: slot}
			appendStatusUpdate(next, now, input.Notes, input.Caller.UserID)
			return map[string]any{"scheduledDate": date, "scheduledSlot": slot}, nil
		},
	})
}

func (s *service) MarkPickedUp(ctx context.Context, input NoteInput) (*TransitionResult, error) {
	from := []enums.ReturnStatus{enums.ReturnStatusPickupScheduled}
	return s.run(ctx, step{
		name:        "mark_picked_up",
		action:      access.ActionReturnMarkPickedUp,
		auditAction: enums.ActionPickedUp,
		returnID:    input.ReturnID,
		caller:      input.Caller,
		notes:       input.Notes,
		from:        from,
		apply: func(cur, next *models.ReturnRequest, now time.Time) (map[string]any, error) {
			if err := moveTo(cur, next, enums.ReturnStatusPickedUp, from...); err != nil {
				return nil, err
			}
			appendStatusUpdate(next, now, input.Notes, input.Caller.UserID)
			return nil, nil
		},
	})
}

func (s *service) Receive(ctx context.Context, input ReceiveInput) (*TransitionResult, error) {
	from := []enums.ReturnStatus{enums.ReturnStatusPickedUp}
	condition := strings.TrimSpace(input.Condition)
	receivedAt := input.ReceivedAt.UTC()
	return s.run(ctx, step{
		name:        "receive",
		action:      access.ActionReturnReceive,
		auditAction: enums.ActionReceived,
		returnID:    input.ReturnID,
		caller:      input.Caller,
		notes:       input.Notes,
		from:        from,
		check: func() error {
			if input.ReceivedAt.IsZero() {
				return invalid("receivedAt required", "receivedAt")
			}
			if receivedAt.After(s.now().Add(receiptClockSkew)) {
				return invalid("receivedAt must not be in the future", "receivedAt")
			}
			if condition == "" {
				return invalid("condition required", "condition")
			}
			return nil
		},
		apply: func(cur, next *models.ReturnRequest, now time.Time) (map[string]any, error) {
			if err := moveTo(cur, next, enums.ReturnStatusInWarehouse, from...); err != nil {
				return nil, err
			}
			next.WarehouseManagement.ReceivedAt = &receivedAt
			next.WarehouseManagement.ReceivedCondition = &condition
			appendStatusUpdate(next, now, input.Notes, input.Caller.UserID)
			return map[string]any{"receivedAt": receivedAt.Format(time.RFC3339), "condition": condition}, nil
		},
	})
}

func (s *service) Assess(ctx context.Context, input AssessInput) (*TransitionResult, error) {
	from := []enums.ReturnStatus{enums.ReturnStatusInWarehouse}
	condition := enums.ItemCondition(strings.TrimSpace(input.ItemCondition))
	return s.run(ctx, step{
		name:        "assess",
		action:      access.ActionReturnAssess,
		auditAction: enums.ActionAssessed,
		returnID:    input.ReturnID,
		caller:      input.Caller,
		from:        from,
		check: func() error {
			if _, err := refund.EligibilityForScore(input.QualityScore); err != nil {
				return err
			}
			if !condition.IsValid() {
				return invalid(fmt.Sprintf("unknown item condition %q", input.ItemCondition), "itemCondition")
			}
			return nil
		},
		apply: func(cur, next *models.ReturnRequest, now time.Time) (map[string]any, error) {
			if cur.WarehouseManagement.QualityAssessment != nil {
				return nil, illegal("quality assessment is already recorded", cur.Status)
			}
			if err := moveTo(cur, next, enums.ReturnStatusQualityChecked, from...); err != nil {
				return nil, err
			}
			res, err := refund.ComputeLines(refundLines(cur.Items), refund.Adjustments{
				QualityScore:     input.QualityScore,
				RefundPercentage: input.RefundPercentage,
			})
			if err != nil {
				return nil, err
			}
			next.WarehouseManagement.QualityAssessment = &types.QualityAssessment{
				QualityScore:           input.QualityScore,
				ItemCondition:          condition,
				RefundEligibility:      res.Eligibility,
				RefundPercentage:       res.RefundPercentage,
				ConditionDetails:       strings.TrimSpace(input.ConditionDetails),
				WarehouseNotes:         strings.TrimSpace(input.WarehouseNotes),
				RequiresManualOverride: res.RequiresManualOverride,
				Estimate: types.RefundEstimate{
					GrossAmount:    res.GrossAmount,
					NetAmount:      res.NetAmount,
					CoinEquivalent: res.CoinEquivalent,
				},
				AssessedAt: now,
				AssessedBy: input.Caller.UserID,
			}
			var notes *string
			if wn := strings.TrimSpace(input.WarehouseNotes); wn != "" {
				notes = &wn
			}
			appendStatusUpdate(next, now, notes, input.Caller.UserID)
			return map[string]any{
				"qualityScore":           input.QualityScore,
				"itemCondition":          string(condition),
				"refundEligibility":      string(res.Eligibility),
				"refundPercentage":       res.RefundPercentage.String(),
				"estimatedNetAmount":     res.NetAmount.StringFixed(2),
				"requiresManualOverride": res.RequiresManualOverride,
			}, nil
		},
	})
}

func (s *service) FinalDecision(ctx context.Context, input FinalDecisionInput) (*TransitionResult, error) {
	from := []enums.ReturnStatus{enums.ReturnStatusQualityChecked}
	var (
		decision   enums.ReviewDecision
		deductions []refund.Deduction
	)
	return s.run(ctx, step{
		name:        "final_decision",
		action:      access.ActionReturnFinalDecision,
		auditAction: enums.ActionFinalDecision,
		returnID:    input.ReturnID,
		caller:      input.Caller,
		notes:       input.AdminNotes,
		from:        from,
		check: func() error {
			d, err := enums.ParseReviewDecision(strings.TrimSpace(input.Decision))
			if err != nil {
				return invalid(err.Error(), "decision")
			}
			decision = d
			if decision == enums.DecisionRejected && (input.FinalAmount != nil || len(input.Deductions) > 0) {
				return invalid("finalAmount and deductions only apply to approved refunds", "decision")
			}
			parsed, err := parseDeductions(input.Deductions)
			if err != nil {
				return err
			}
			deductions = parsed
			return nil
		},
		apply: func(cur, next *models.ReturnRequest, now time.Time) (map[string]any, error) {
			target := enums.ReturnStatusRejected
			if decision == enums.DecisionApproved {
				target = enums.ReturnStatusRefundApproved
			}
			if err := moveTo(cur, next, target, from...); err != nil {
				return nil, err
			}
			qa := cur.WarehouseManagement.QualityAssessment
			if qa == nil {
				return nil, illegal("return has no quality assessment", cur.Status)
			}

			record := types.AdminDecision{
				Decision:         decision,
				GrossAmount:      qa.Estimate.GrossAmount,
				RefundPercentage: decimal.Zero,
				NetAmount:        decimal.Zero,
				FinalCoins:       decimal.Zero,
				Deductions:       []types.RefundDeduction{},
				AdminNotes:       input.AdminNotes,
				DecidedAt:        now,
				DecidedBy:        input.Caller.UserID,
			}
			if decision == enums.DecisionApproved {
				if qa.RequiresManualOverride && input.FinalAmount == nil {
					return nil, invalid("poor quality returns need an explicit finalAmount", "finalAmount")
				}
				pct := qa.RefundPercentage
				res, err := refund.ComputeLines(refundLines(cur.Items), refund.Adjustments{
					QualityScore:     qa.QualityScore,
					RefundPercentage: &pct,
					Deductions:       deductions,
					FinalAmount:      input.FinalAmount,
				})
				if err != nil {
					return nil, err
				}
				record.FinalAmount = input.FinalAmount
				record.GrossAmount = res.GrossAmount
				record.RefundPercentage = res.RefundPercentage
				record.NetAmount = res.NetAmount
				record.FinalCoins = res.CoinEquivalent
				for _, d := range deductions {
					record.Deductions = append(record.Deductions, types.RefundDeduction{Type: d.Type, Amount: d.Amount, Reason: d.Reason})
				}
			}
			next.Refund = &types.RefundRecord{AdminDecision: &record}
			return map[string]any{
				"decision":   string(decision),
				"netAmount":  record.NetAmount.StringFixed(2),
				"finalCoins": record.FinalCoins.String(),
			}, nil
		},
	})
}

func (s *service) ProcessRefund(ctx context.Context, input NoteInput) (*TransitionResult, error) {
	from := []enums.ReturnStatus{enums.ReturnStatusRefundApproved}
	return s.run(ctx, step{
		name:        "process_refund",
		action:      access.ActionReturnProcessRefund,
		auditAction: enums.ActionRefundProcessed,
		returnID:    input.ReturnID,
		caller:      input.Caller,
		notes:       input.Notes,
		from:        from,
		apply: func(cur, next *models.ReturnRequest, now time.Time) (map[string]any, error) {
			if cur.Refund != nil && cur.Refund.Processing != nil && cur.Refund.Processing.CoinsCredited {
				return nil, illegal("coins were already credited for this return", cur.Status)
			}
			if err := moveTo(cur, next, enums.ReturnStatusRefundProcessed, from...); err != nil {
				return nil, err
			}
			if next.Refund == nil || next.Refund.AdminDecision == nil {
				return nil, illegal("return has no refund decision", cur.Status)
			}
			next.Refund.Processing = &types.RefundProcessing{
				CoinsCredited: true,
				CoinRefund:    next.Refund.AdminDecision.FinalCoins,
				ProcessedAt:   now,
				ProcessedBy:   input.Caller.UserID,
			}
			return map[string]any{"coinRefund": next.Refund.Processing.CoinRefund.String()}, nil
		},
		events: func(next *models.ReturnRequest, now time.Time) []outbox.DomainEvent {
			return []outbox.DomainEvent{{
				EventType:     enums.EventReturnRefundCredited,
				AggregateType: enums.AggregateReturnRequest,
				AggregateID:   next.ID,
				Actor:         input.Caller.Actor(),
				OccurredAt:    now,
				Data: payloads.RefundCreditedEvent{
					ReturnID:    next.ID,
					CustomerID:  next.CustomerID,
					NetAmount:   next.Refund.AdminDecision.NetAmount,
					CoinRefund:  next.Refund.Processing.CoinRefund,
					ProcessedAt: now,
				},
			}}
		},
	})
}

func (s *service) Complete(ctx context.Context, input NoteInput) (*TransitionResult, error) {
	from := []enums.ReturnStatus{enums.ReturnStatusRefundProcessed}
	return s.run(ctx, step{
		name:        "complete",
		action:      access.ActionReturnComplete,
		auditAction: enums.ActionCompleted,
		returnID:    input.ReturnID,
		caller:      input.Caller,
		notes:       input.Notes,
		from:        from,
		apply: func(cur, next *models.ReturnRequest, now time.Time) (map[string]any, error) {
			if err := moveTo(cur, next, enums.ReturnStatusCompleted, from...); err != nil {
				return nil, err
			}
			return nil, nil
		},
	})
}

func (s *service) Cancel(ctx context.Context, input NoteInput) (*TransitionResult, error) {
	from := []enums.ReturnStatus{enums.ReturnStatusRequested}
	return s.run(ctx, step{
		name:        "cancel",
		action:      access.ActionReturnCancel,
		auditAction: enums.ActionCancelled,
		returnID:    input.ReturnID,
		caller:      input.Caller,
		notes:       input.Notes,
		from:        from,
		apply: func(cur, next *models.ReturnRequest, now time.Time) (map[string]any, error) {
			if err := moveTo(cur, next, enums.ReturnStatusCancelled, from...); err != nil {
				return nil, err
			}
			return nil, nil
		},
	})
}

// UpdatePickupCharge changes the pickup fee without moving the status.
// Repeating the same charge is a no-op.
func (s *service) UpdatePickupCharge(ctx context.Context, input UpdatePickupChargeInput) (*TransitionResult, error) {
	var charge types.PickupCharge
	return s.run(ctx, step{
		name:        "pickup_charge",
		action:      access.ActionReturnPickupCharge,
		auditAction: enums.ActionPickupChargeUpdated,
		returnID:    input.ReturnID,
		caller:      input.Caller,
		from:        pickupChargeSources,
		check: func() error {
			if input.Charge.Amount != nil && input.Charge.Amount.IsNegative() {
				return invalid("amount must not be negative", "amount")
			}
			if strings.TrimSpace(input.Charge.Reason) == "" {
				return invalid("reason required", "reason")
			}
			return nil
		},
		apply: func(cur, next *models.ReturnRequest, now time.Time) (map[string]any, error) {
			if cur.AdminReview == nil {
				return nil, illegal(fmt.Sprintf("pickup charge cannot change while return is %s", cur.Status), cur.Status)
			}
			resolved, err := resolvePickupCharge(input.Charge, cur.AdminReview.PickupCharge)
			if err != nil {
				return nil, err
			}
			if sameCharge(cur.AdminReview.PickupCharge, resolved) {
				return nil, errUnchanged
			}
			charge = resolved
			next.AdminReview.PickupCharge = &resolved
			return chargePayload(resolved), nil
		},
		events: func(next *models.ReturnRequest, now time.Time) []outbox.DomainEvent {
			return []outbox.DomainEvent{{
				EventType:     enums.EventPickupChargeUpdated,
				AggregateType: enums.AggregateReturnRequest,
				AggregateID:   next.ID,
				Actor:         input.Caller.Actor(),
				OccurredAt:    now,
				Data: payloads.PickupChargeUpdatedEvent{
					ReturnID:   next.ID,
					CustomerID: next.CustomerID,
					IsFree:     charge.IsFree,
					Amount:     charge.Amount,
					Coins:      charge.Coins,
					Reason:     charge.Reason,
					UpdatedAt:  now,
				},
			}}
		},
	})
}

// resolvePickupCharge validates in against the current charge. A non-free
// charge without an amount keeps the current positive amount.
func resolvePickupCharge(in PickupChargeInput, current *types.PickupCharge) (types.PickupCharge, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return types.PickupCharge{}, invalid("pickup charge reason required", "pickupCharge.reason")
	}
	amount := decimal.Zero
	if !in.IsFree {
		switch {
		case in.Amount != nil:
			amount = *in.Amount
		case current != nil && current.Amount.IsPositive():
			amount = current.Amount
		default:
			return types.PickupCharge{}, invalid("amount required when pickup is not free", "pickupCharge.amount")
		}
		if !amount.IsPositive() {
			return types.PickupCharge{}, invalid("amount must be positive when pickup is not free", "pickupCharge.amount")
		}
	}
	amount = amount.Round(2)
	return types.PickupCharge{
		IsFree: in.IsFree,
		Amount: amount,
		Reason: reason,
		Coins:  refund.ToCoins(amount),
	}, nil
}

func sameCharge(current *types.PickupCharge, next types.PickupCharge) bool {
	if current == nil {
		return false
	}
	return current.IsFree == next.IsFree && current.Amount.Equal(next.Amount) && current.Reason == next.Reason
}

func chargePayload(c types.PickupCharge) map[string]any {
	return map[string]any{
		"isFree": c.IsFree,
		"amount": c.Amount.StringFixed(2),
		"coins":  c.Coins.String(),
		"reason": c.Reason,
	}
}

func parseDeductions(in []DeductionInput) ([]refund.Deduction, error) {
	out := make([]refund.Deduction, 0, len(in))
	for i, d := range in {
		kind := enums.DeductionType(strings.TrimSpace(d.Type))
		if !kind.IsValid() {
			return nil, invalid(fmt.Sprintf("unknown deduction type %q", d.Type), fmt.Sprintf("deductions[%d].type", i))
		}
		if d.Amount.IsNegative() {
			return nil, invalid("deduction amount must not be negative", fmt.Sprintf("deductions[%d].amount", i))
		}
		out = append(out, refund.Deduction{Type: kind, Amount: d.Amount, Reason: strings.TrimSpace(d.Reason)})
	}
	return out, nil
}

func refundLines(items []types.ReturnItem) []refund.Line {
	lines := make([]refund.Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, refund.Line{OriginalPrice: item.OriginalPrice, Quantity: item.Qty})
	}
	return lines
}
