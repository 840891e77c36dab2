package types

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderItem is one line of an order, stored inside the order row.
type OrderItem struct {
	ProductID uuid.UUID       `json:"productId"`
	VariantID *uuid.UUID      `json:"variantId,omitempty"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// LineTotal is UnitPrice multiplied by Qty.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Qty)))
}

// SameProduct reports whether both lines reference the same product variant.
func SameProduct(productA uuid.UUID, variantA *uuid.UUID, productB uuid.UUID, variantB *uuid.UUID) bool {
	if productA != productB {
		return false
	}
	if variantA == nil || variantB == nil {
		return variantA == nil && variantB == nil
	}
	return *variantA == *variantB
}
