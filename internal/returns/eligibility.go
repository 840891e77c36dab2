package returns

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/types"
)

// checkReturnWindow rejects orders that are not delivered or were delivered
// longer than window ago.
func checkReturnWindow(order *models.Order, now time.Time, window time.Duration) error {
	if order.Status != enums.OrderStatusDelivered || order.DeliveredAt == nil {
		return invalid("only delivered orders can be returned", "orderId").
			WithDetails(map[string]any{"field": "orderId", "orderStatus": string(order.Status)})
	}
	deadline := order.DeliveredAt.Add(window)
	if now.After(deadline) {
		return invalid("return window has closed", "orderId").
			WithDetails(map[string]any{"field": "orderId", "returnDeadline": deadline.UTC().Format(time.RFC3339)})
	}
	return nil
}

// buildItems prices the requested lines from the order. Quantities already
// claimed by other live returns of the same order count against the limit.
func buildItems(order *models.Order, requested []ItemInput, existing []models.ReturnRequest) ([]types.ReturnItem, error) {
	if len(requested) == 0 {
		return nil, invalid("at least one item is required", "items")
	}

	claimed := make([]int, len(order.Items))
	for _, other := range existing {
		if !consumesOrderQty(other.Status) {
			continue
		}
		for _, item := range other.Items {
			if idx := findLine(order.Items, item.ProductID, item.VariantID); idx >= 0 {
				claimed[idx] += item.Qty
			}
		}
	}

	out := make([]types.ReturnItem, 0, len(requested))
	for i, req := range requested {
		field := fmt.Sprintf("items[%d]", i)
		if req.Qty < 1 {
			return nil, invalid("quantity must be at least 1", field+".qty")
		}
		idx := findLine(order.Items, req.ProductID, req.VariantID)
		if idx < 0 {
			return nil, invalid("item is not part of the order", field+".productId")
		}
		claimed[idx] += req.Qty
		if claimed[idx] > order.Items[idx].Qty {
			remaining := order.Items[idx].Qty - (claimed[idx] - req.Qty)
			if remaining < 0 {
				remaining = 0
			}
			return nil, invalid("quantity exceeds the returnable quantity", field+".qty").
				WithDetails(map[string]any{"field": field + ".qty", "returnable": remaining})
		}
		out = append(out, types.ReturnItem{
			ProductID:     req.ProductID,
			VariantID:     req.VariantID,
			Qty:           req.Qty,
			OriginalPrice: order.Items[idx].UnitPrice,
		})
	}
	return out, nil
}

func findLine(lines []types.OrderItem, productID uuid.UUID, variantID *uuid.UUID) int {
	for i, line := range lines {
		if types.SameProduct(line.ProductID, line.VariantID, productID, variantID) {
			return i
		}
	}
	return -1
}
