package returns

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fulfillment-backend/api/controllers/views"
	"github.com/angelmondragon/fulfillment-backend/api/middleware"
	"github.com/angelmondragon/fulfillment-backend/api/responses"
	"github.com/angelmondragon/fulfillment-backend/api/validators"
	"github.com/angelmondragon/fulfillment-backend/internal/access"
	internalreturns "github.com/angelmondragon/fulfillment-backend/internal/returns"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/pagination"
)

const (
	maxNotesLen    = 2000
	maxReasonLen   = 500
	maxEvidenceURL = 2048
)

type returnItemRequest struct {
	ProductID uuid.UUID  `json:"productId" validate:"required"`
	VariantID *uuid.UUID `json:"variantId"`
	Qty       int        `json:"qty" validate:"min=1"`
}

type createReturnRequest struct {
	OrderID          uuid.UUID           `json:"orderId" validate:"required"`
	Items            []returnItemRequest `json:"items" validate:"required,min=1,dive"`
	ReturnReason     string              `json:"returnReason" validate:"required,max=500"`
	CustomerComments *string             `json:"customerComments" validate:"omitempty,max=2000"`
	EvidenceImages   []string            `json:"evidenceImages" validate:"omitempty,max=10,dive,url,max=2048"`
}

type notesRequest struct {
	Notes *string `json:"notes" validate:"omitempty,max=2000"`
}

type pickupChargeRequest struct {
	IsFree bool             `json:"isFree"`
	Amount *decimal.Decimal `json:"amount"`
	Reason string           `json:"reason" validate:"max=500"`
}

type reviewRequest struct {
	Decision      string               `json:"decision" validate:"required"`
	AdminComments *string              `json:"adminComments" validate:"omitempty,max=2000"`
	PickupCharge  *pickupChargeRequest `json:"pickupCharge"`
}

type assignWarehouseRequest struct {
	WarehouseID string  `json:"warehouseId" validate:"required,max=128"`
	Notes       *string `json:"notes" validate:"omitempty,max=2000"`
}

type schedulePickupRequest struct {
	ScheduledDate string  `json:"scheduledDate" validate:"required"`
	ScheduledSlot string  `json:"scheduledSlot" validate:"required,max=64"`
	Notes         *string `json:"notes" validate:"omitempty,max=2000"`
}

type receiveRequest struct {
	ReceivedAt time.Time `json:"receivedAt" validate:"required"`
	Condition  string    `json:"condition" validate:"required,max=500"`
	Notes      *string   `json:"notes" validate:"omitempty,max=2000"`
}

type assessRequest struct {
	QualityScore     int              `json:"qualityScore"`
	ItemCondition    string           `json:"itemCondition" validate:"required"`
	RefundPercentage *decimal.Decimal `json:"refundPercentage"`
	WarehouseNotes   string           `json:"warehouseNotes" validate:"max=2000"`
	ConditionDetails string           `json:"conditionDetails" validate:"max=2000"`
}

type deductionRequest struct {
	Type   string          `json:"type" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" validate:"max=500"`
}

type finalDecisionRequest struct {
	Decision    string             `json:"decision" validate:"required"`
	FinalAmount *decimal.Decimal   `json:"finalAmount"`
	Deductions  []deductionRequest `json:"deductions" validate:"omitempty,dive"`
	AdminNotes  *string            `json:"adminNotes" validate:"omitempty,max=2000"`
}

type listResponse struct {
	Items      []views.Return `json:"items"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

// Create opens a return request against a delivered order.
func Create(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerOrFail(w, r, svc, logg)
		if !ok {
			return
		}

		var body createReturnRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]internalreturns.ItemInput, 0, len(body.Items))
		for _, item := range body.Items {
			items = append(items, internalreturns.ItemInput{
				ProductID: item.ProductID,
				VariantID: item.VariantID,
				Qty:       item.Qty,
			})
		}
		evidence := make([]string, 0, len(body.EvidenceImages))
		for _, url := range body.EvidenceImages {
			evidence = append(evidence, validators.SanitizeString(url, maxEvidenceURL))
		}

		result, err := svc.Create(r.Context(), internalreturns.CreateInput{
			OrderID:          body.OrderID,
			Items:            items,
			Reason:           validators.SanitizeString(body.ReturnReason, maxReasonLen),
			CustomerComments: validators.SanitizeOptional(body.CustomerComments, maxNotesLen),
			EvidenceImages:   evidence,
			Caller:           caller,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, transitionView(result))
	}
}

// Get returns one return request. Customers only see their own.
func Get(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, returnID, ok := callerAndID(w, r, svc, logg)
		if !ok {
			return
		}
		ret, err := svc.Get(r.Context(), caller, returnID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, views.NewReturn(ret))
	}
}

// History lists the audit trail of a return request, oldest first.
func History(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, returnID, ok := callerAndID(w, r, svc, logg)
		if !ok {
			return
		}
		entries, err := svc.History(r.Context(), caller, returnID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, views.NewAuditList(entries))
	}
}

// List pages return requests newest first. Customers are scoped to their own.
func List(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerOrFail(w, r, svc, logg)
		if !ok {
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseQueryUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		customerID, err := validators.ParseQueryUUID(r, "customerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		query := r.URL.Query()
		result, err := svc.List(r.Context(), internalreturns.ListInput{
			Caller:     caller,
			Status:     strings.TrimSpace(query.Get("status")),
			OrderID:    orderID,
			CustomerID: customerID,
			Page: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(query.Get("cursor")),
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]views.Return, 0, len(result.Items))
		for i := range result.Items {
			items = append(items, *views.NewReturn(&result.Items[i]))
		}
		responses.WriteSuccess(w, listResponse{Items: items, NextCursor: result.NextCursor})
	}
}

func StartReview(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return noteTransition(svc, logg, internalreturns.Service.StartReview)
}

func MarkPickedUp(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return noteTransition(svc, logg, internalreturns.Service.MarkPickedUp)
}

func ProcessRefund(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return noteTransition(svc, logg, internalreturns.Service.ProcessRefund)
}

func Complete(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return noteTransition(svc, logg, internalreturns.Service.Complete)
}

// Cancel withdraws a return. Only the owning customer may cancel.
func Cancel(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return noteTransition(svc, logg, internalreturns.Service.Cancel)
}

func Review(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body reviewRequest
		withBody(w, r, svc, logg, &body, func(ctx context.Context, caller access.Caller, id uuid.UUID) (*internalreturns.TransitionResult, error) {
			input := internalreturns.ReviewInput{
				ReturnID:      id,
				Decision:      body.Decision,
				AdminComments: validators.SanitizeOptional(body.AdminComments, maxNotesLen),
				Caller:        caller,
			}
			if body.PickupCharge != nil {
				charge := toPickupCharge(*body.PickupCharge)
				input.PickupCharge = &charge
			}
			return svc.Review(ctx, input)
		})
	}
}

func AssignWarehouse(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body assignWarehouseRequest
		withBody(w, r, svc, logg, &body, func(ctx context.Context, caller access.Caller, id uuid.UUID) (*internalreturns.TransitionResult, error) {
			return svc.AssignWarehouse(ctx, internalreturns.AssignWarehouseInput{
				ReturnID:    id,
				WarehouseID: body.WarehouseID,
				Notes:       validators.SanitizeOptional(body.Notes, maxNotesLen),
				Caller:      caller,
			})
		})
	}
}

func SchedulePickup(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body schedulePickupRequest
		withBody(w, r, svc, logg, &body, func(ctx context.Context, caller access.Caller, id uuid.UUID) (*internalreturns.TransitionResult, error) {
			return svc.SchedulePickup(ctx, internalreturns.SchedulePickupInput{
				ReturnID:      id,
				ScheduledDate: body.ScheduledDate,
				ScheduledSlot: body.ScheduledSlot,
				Notes:         validators.SanitizeOptional(body.Notes, maxNotesLen),
				Caller:        caller,
			})
		})
	}
}

func Receive(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body receiveRequest
		withBody(w, r, svc, logg, &body, func(ctx context.Context, caller access.Caller, id uuid.UUID) (*internalreturns.TransitionResult, error) {
			return svc.Receive(ctx, internalreturns.ReceiveInput{
				ReturnID:   id,
				ReceivedAt: body.ReceivedAt,
				Condition:  validators.SanitizeString(body.Condition, maxReasonLen),
				Notes:      validators.SanitizeOptional(body.Notes, maxNotesLen),
				Caller:     caller,
			})
		})
	}
}

func Assess(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body assessRequest
		withBody(w, r, svc, logg, &body, func(ctx context.Context, caller access.Caller, id uuid.UUID) (*internalreturns.TransitionResult, error) {
			return svc.Assess(ctx, internalreturns.AssessInput{
				ReturnID:         id,
				QualityScore:     body.QualityScore,
				ItemCondition:    body.ItemCondition,
				RefundPercentage: body.RefundPercentage,
				WarehouseNotes:   validators.SanitizeString(body.WarehouseNotes, maxNotesLen),
				ConditionDetails: validators.SanitizeString(body.ConditionDetails, maxNotesLen),
				Caller:           caller,
			})
		})
	}
}

func FinalDecision(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body finalDecisionRequest
		withBody(w, r, svc, logg, &body, func(ctx context.Context, caller access.Caller, id uuid.UUID) (*internalreturns.TransitionResult, error) {
			deductions := make([]internalreturns.DeductionInput, 0, len(body.Deductions))
			for _, d := range body.Deductions {
				deductions = append(deductions, internalreturns.DeductionInput{
					Type:   d.Type,
					Amount: d.Amount,
					Reason: validators.SanitizeString(d.Reason, maxReasonLen),
				})
			}
			return svc.FinalDecision(ctx, internalreturns.FinalDecisionInput{
				ReturnID:    id,
				Decision:    body.Decision,
				FinalAmount: body.FinalAmount,
				Deductions:  deductions,
				AdminNotes:  validators.SanitizeOptional(body.AdminNotes, maxNotesLen),
				Caller:      caller,
			})
		})
	}
}

// UpdatePickupCharge replaces the pickup fee while the return awaits pickup.
func UpdatePickupCharge(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body pickupChargeRequest
		withBody(w, r, svc, logg, &body, func(ctx context.Context, caller access.Caller, id uuid.UUID) (*internalreturns.TransitionResult, error) {
			return svc.UpdatePickupCharge(ctx, internalreturns.UpdatePickupChargeInput{
				ReturnID: id,
				Charge:   toPickupCharge(body),
				Caller:   caller,
			})
		})
	}
}

type noteOp func(svc internalreturns.Service, ctx context.Context, input internalreturns.NoteInput) (*internalreturns.TransitionResult, error)

func noteTransition(svc internalreturns.Service, logg *logger.Logger, op noteOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body notesRequest
		withBody(w, r, svc, logg, &body, func(ctx context.Context, caller access.Caller, id uuid.UUID) (*internalreturns.TransitionResult, error) {
			return op(svc, ctx, internalreturns.NoteInput{
				ReturnID: id,
				Notes:    validators.SanitizeOptional(body.Notes, maxNotesLen),
				Caller:   caller,
			})
		})
	}
}

// withBody resolves the caller and path id, decodes the body into dest, then
// runs call and writes the transition.
func withBody(w http.ResponseWriter, r *http.Request, svc internalreturns.Service, logg *logger.Logger, dest any, call func(context.Context, access.Caller, uuid.UUID) (*internalreturns.TransitionResult, error)) {
	caller, returnID, ok := callerAndID(w, r, svc, logg)
	if !ok {
		return
	}
	if err := validators.DecodeOptionalJSONBody(r, dest); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}

	ctx := r.Context()
	if logg != nil {
		ctx = logg.WithReturnID(ctx, returnID.String())
	}
	result, err := call(ctx, caller, returnID)
	if err != nil {
		responses.WriteError(ctx, logg, w, err)
		return
	}
	responses.WriteSuccess(w, transitionView(result))
}

func toPickupCharge(req pickupChargeRequest) internalreturns.PickupChargeInput {
	return internalreturns.PickupChargeInput{
		IsFree: req.IsFree,
		Amount: req.Amount,
		Reason: validators.SanitizeString(req.Reason, maxReasonLen),
	}
}

func transitionView(result *internalreturns.TransitionResult) views.Transition {
	return views.Transition{
		Entity: views.NewReturn(result.Return),
		Audit:  views.NewAudit(result.Audit),
	}
}

func callerAndID(w http.ResponseWriter, r *http.Request, svc internalreturns.Service, logg *logger.Logger) (access.Caller, uuid.UUID, bool) {
	caller, ok := callerOrFail(w, r, svc, logg)
	if !ok {
		return caller, uuid.Nil, false
	}
	returnID, err := validators.ParseUUIDParam(r, "id")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return caller, uuid.Nil, false
	}
	return caller, returnID, true
}

func callerOrFail(w http.ResponseWriter, r *http.Request, svc internalreturns.Service, logg *logger.Logger) (caller access.Caller, ok bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable"))
		return caller, false
	}
	caller, ok = middleware.CallerFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
		return caller, false
	}
	return caller, true
}
