package returns

import (
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/types"
)

// cloneReturn copies ret deeply enough that mutating the copy's sub-documents
// never reaches the original.
func cloneReturn(ret *models.ReturnRequest) *models.ReturnRequest {
	next := *ret
	next.Items = append([]types.ReturnItem(nil), ret.Items...)
	next.EvidenceImages = append([]string(nil), ret.EvidenceImages...)

	if ret.AdminReview != nil {
		review := *ret.AdminReview
		if review.PickupCharge != nil {
			charge := *review.PickupCharge
			review.PickupCharge = &charge
		}
		next.AdminReview = &review
	}

	wm := ret.WarehouseManagement
	wm.StatusUpdates = append([]types.StatusUpdate(nil), wm.StatusUpdates...)
	if wm.Pickup != nil {
		pickup := *wm.Pickup
		wm.Pickup = &pickup
	}
	if wm.QualityAssessment != nil {
		qa := *wm.QualityAssessment
		wm.QualityAssessment = &qa
	}
	next.WarehouseManagement = wm

	if ret.Refund != nil {
		refund := *ret.Refund
		if refund.AdminDecision != nil {
			decision := *refund.AdminDecision
			decision.Deductions = append([]types.RefundDeduction(nil), decision.Deductions...)
			refund.AdminDecision = &decision
		}
		if refund.Processing != nil {
			processing := *refund.Processing
			refund.Processing = &processing
		}
		next.Refund = &refund
	}
	return &next
}
