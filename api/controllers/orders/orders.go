package orders

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fulfillment-backend/api/controllers/views"
	"github.com/angelmondragon/fulfillment-backend/api/middleware"
	"github.com/angelmondragon/fulfillment-backend/api/responses"
	"github.com/angelmondragon/fulfillment-backend/api/validators"
	"github.com/angelmondragon/fulfillment-backend/internal/access"
	internalorders "github.com/angelmondragon/fulfillment-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/types"
)

const maxNotesLen = 2000

type orderItemRequest struct {
	ProductID uuid.UUID       `json:"productId" validate:"required"`
	VariantID *uuid.UUID      `json:"variantId"`
	Qty       int             `json:"qty" validate:"min=1"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type createOrderRequest struct {
	CustomerID uuid.UUID          `json:"customerId" validate:"required"`
	Items      []orderItemRequest `json:"items" validate:"required,min=1,dive"`
	PlacedAt   *time.Time         `json:"placedAt"`
}

type updateStatusRequest struct {
	Status      string  `json:"status" validate:"required"`
	DeliveryOTP *string `json:"deliveryOtp"`
	Notes       *string `json:"notes" validate:"omitempty,max=2000"`
}

// Create registers an order placed upstream. Admin only.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerOrFail(w, r, svc, logg)
		if !ok {
			return
		}

		var body createOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]types.OrderItem, 0, len(body.Items))
		for _, item := range body.Items {
			items = append(items, types.OrderItem{
				ProductID: item.ProductID,
				VariantID: item.VariantID,
				Qty:       item.Qty,
				UnitPrice: item.UnitPrice,
			})
		}

		result, err := svc.Create(r.Context(), internalorders.CreateOrderInput{
			CustomerID: body.CustomerID,
			Items:      items,
			PlacedAt:   body.PlacedAt,
			Caller:     caller,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, views.Transition{
			Entity: views.NewOrder(result.Order),
			Audit:  views.NewAudit(result.Audit),
		})
	}
}

// Get returns one order. Customers only see their own.
func Get(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerOrFail(w, r, svc, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Get(r.Context(), caller, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, views.NewOrder(order))
	}
}

// UpdateStatus moves an order to shipped, delivered or cancelled.
func UpdateStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerOrFail(w, r, svc, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID.String())
		}
		result, err := svc.UpdateStatus(ctx, internalorders.UpdateStatusInput{
			OrderID:     orderID,
			Status:      body.Status,
			DeliveryOTP: body.DeliveryOTP,
			Notes:       validators.SanitizeOptional(body.Notes, maxNotesLen),
			Caller:      caller,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, views.Transition{
			Entity: views.NewOrder(result.Order),
			Audit:  views.NewAudit(result.Audit),
		})
	}
}

func callerOrFail(w http.ResponseWriter, r *http.Request, svc internalorders.Service, logg *logger.Logger) (caller access.Caller, ok bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
		return caller, false
	}
	caller, ok = middleware.CallerFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
		return caller, false
	}
	return caller, true
}
