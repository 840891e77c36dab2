package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fulfillment-backend/api/middleware"
	"github.com/angelmondragon/fulfillment-backend/api/responses"
	"github.com/angelmondragon/fulfillment-backend/api/validators"
	"github.com/angelmondragon/fulfillment-backend/internal/access"
	"github.com/angelmondragon/fulfillment-backend/internal/refund"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

type quoteLineRequest struct {
	OriginalPrice decimal.Decimal `json:"originalPrice"`
	Qty           int             `json:"qty" validate:"min=1"`
}

type quoteDeductionRequest struct {
	Type   string          `json:"type" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" validate:"max=500"`
}

type refundQuoteRequest struct {
	Items            []quoteLineRequest      `json:"items" validate:"required,min=1,dive"`
	QualityScore     int                     `json:"qualityScore"`
	RefundPercentage *decimal.Decimal        `json:"refundPercentage"`
	FinalAmount      *decimal.Decimal        `json:"finalAmount"`
	Deductions       []quoteDeductionRequest `json:"deductions" validate:"omitempty,dive"`
}

type refundQuoteResponse struct {
	GrossAmount            decimal.Decimal         `json:"grossAmount"`
	RefundPercentage       decimal.Decimal         `json:"refundPercentage"`
	BaseAmount             decimal.Decimal         `json:"baseAmount"`
	DeductionsTotal        decimal.Decimal         `json:"deductionsTotal"`
	NetAmount              decimal.Decimal         `json:"netAmount"`
	CoinEquivalent         decimal.Decimal         `json:"coinEquivalent"`
	RefundEligibility      enums.RefundEligibility `json:"refundEligibility"`
	RequiresManualOverride bool                    `json:"requiresManualOverride"`
	AmountOverridden       bool                    `json:"amountOverridden"`
}

// RefundQuote runs the refund engine without touching any return request.
func RefundQuote(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := middleware.CallerFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}
		if err := access.Authorize(caller, access.ActionRefundQuote, uuid.Nil); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body refundQuoteRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lines := make([]refund.Line, 0, len(body.Items))
		for _, item := range body.Items {
			lines = append(lines, refund.Line{OriginalPrice: item.OriginalPrice, Quantity: item.Qty})
		}
		deductions := make([]refund.Deduction, 0, len(body.Deductions))
		for i, d := range body.Deductions {
			kind := enums.DeductionType(d.Type)
			if !kind.IsValid() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown deduction type").
					WithDetails(map[string]any{"field": "deductions", "index": i, "type": d.Type}))
				return
			}
			deductions = append(deductions, refund.Deduction{Type: kind, Amount: d.Amount, Reason: d.Reason})
		}

		res, err := refund.ComputeLines(lines, refund.Adjustments{
			QualityScore:     body.QualityScore,
			RefundPercentage: body.RefundPercentage,
			Deductions:       deductions,
			FinalAmount:      body.FinalAmount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, refundQuoteResponse{
			GrossAmount:            res.GrossAmount,
			RefundPercentage:       res.RefundPercentage,
			BaseAmount:             res.BaseAmount,
			DeductionsTotal:        res.DeductionsTotal,
			NetAmount:              res.NetAmount,
			CoinEquivalent:         res.CoinEquivalent,
			RefundEligibility:      res.Eligibility,
			RequiresManualOverride: res.RequiresManualOverride,
			AmountOverridden:       res.AmountOverridden,
		})
	}
}
