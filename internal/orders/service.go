package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/internal/access"
	"github.com/angelmondragon/fulfillment-backend/internal/audit"
	"github.com/angelmondragon/fulfillment-backend/pkg/cache"
	"github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/metrics"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/fulfillment-backend/pkg/security"
	"github.com/angelmondragon/fulfillment-backend/pkg/types"
)

const metricsEntity = "order"

// OTPCodec issues and checks delivery codes.
type OTPCodec interface {
	Generate() (string, error)
	Hash(code string) (string, error)
	Verify(code, encoded string) (bool, error)
}

// Service defines the order operations exposed to the API layer.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*TransitionResult, error)
	Get(ctx context.Context, caller access.Caller, id uuid.UUID) (*models.Order, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*TransitionResult, error)
}

// ServiceParams wires the order service dependencies.
type ServiceParams struct {
	Repo    Repository
	Tx      db.TxRunner
	Audit   audit.Writer
	Outbox  outbox.Emitter
	OTP     OTPCodec
	Retrier db.Retrier
	Cache   *cache.Snapshots[models.Order]
	Metrics *metrics.TransitionMetrics
	Logger  *logger.Logger
	Clock   func() time.Time
}

type service struct {
	repo    Repository
	tx      db.TxRunner
	audit   audit.Writer
	outbox  outbox.Emitter
	otp     OTPCodec
	retrier db.Retrier
	cache   *cache.Snapshots[models.Order]
	metrics *metrics.TransitionMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit writer required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.OTP == nil {
		return nil, fmt.Errorf("otp codec required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		audit:   params.Audit,
		outbox:  params.Outbox,
		otp:     params.OTP,
		retrier: params.Retrier,
		cache:   params.Cache,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     func() time.Time { return clock().UTC() },
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*TransitionResult, error) {
	started := time.Now()
	result, err := s.create(ctx, input)
	s.metrics.Observe(metricsEntity, "create", started, err)
	return result, err
}

func (s *service) create(ctx context.Context, input CreateOrderInput) (*TransitionResult, error) {
	if err := access.Authorize(input.Caller, access.ActionOrderCreate, uuid.Nil); err != nil {
		return nil, err
	}
	if input.CustomerID == uuid.Nil {
		return nil, invalid("customer id required", "customerId")
	}
	total, err := validateItems(input.Items)
	if err != nil {
		return nil, err
	}

	now := s.now()
	placedAt := now
	if input.PlacedAt != nil {
		placedAt = input.PlacedAt.UTC()
	}

	var result *TransitionResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order := &models.Order{
			ID:            uuid.New(),
			CustomerID:    input.CustomerID,
			Items:         append([]types.OrderItem(nil), input.Items...),
			TotalAmount:   total,
			Status:        Machine.Initial(),
			PaymentStatus: enums.PaymentStatusPending,
			PlacedAt:      placedAt,
			Version:       1,
		}
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}

		entry := audit.NewEntry(audit.Record{
			EntityType: enums.EntityOrder,
			EntityID:   order.ID,
			Action:     enums.ActionOrderCreated,
			To:         string(order.Status),
			Actor:      input.Caller,
			Payload: map[string]any{
				"totalAmount": total.StringFixed(2),
				"itemCount":   len(order.Items),
			},
			At: now,
		})
		if err := s.audit.Insert(tx, entry); err != nil {
			return err
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         input.Caller.Actor(),
			OccurredAt:    now,
			Data: payloads.OrderCreatedEvent{
				OrderID:     order.ID,
				CustomerID:  order.CustomerID,
				TotalAmount: total,
				ItemCount:   len(order.Items),
				PlacedAt:    placedAt,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}

		result = &TransitionResult{Order: order, Audit: entry}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logInfo(ctx, result.Order.ID, "order created")
	return result, nil
}

func (s *service) Get(ctx context.Context, caller access.Caller, id uuid.UUID) (*models.Order, error) {
	if err := access.Authorize(caller, access.ActionOrderRead, uuid.Nil); err != nil {
		return nil, err
	}
	if id == uuid.Nil {
		return nil, invalid("order id required", "id")
	}
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(caller, access.ActionOrderRead, order.CustomerID); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if cached, ok := s.cache.Get(ctx, id); ok {
		return cached, nil
	}
	var order *models.Order
	err := s.retrier.Do(ctx, "load order", func(ctx context.Context) error {
		found, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return db.ClassifyReadError(err, "order")
		}
		order = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.Put(ctx, id, order)
	return order, nil
}

func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*TransitionResult, error) {
	started := time.Now()
	result, err := s.updateStatus(ctx, input)
	s.metrics.Observe(metricsEntity, statusLabel(input.Status), started, err)
	if err == nil || pkgerrors.IsCode(err, pkgerrors.CodeConcurrentModification) {
		s.cache.Invalidate(ctx, input.OrderID)
	}
	return result, err
}

func (s *service) updateStatus(ctx context.Context, input UpdateStatusInput) (*TransitionResult, error) {
	target, parseErr := enums.ParseOrderStatus(strings.TrimSpace(input.Status))
	action := actionForTarget(target)
	if err := access.Authorize(input.Caller, action, uuid.Nil); err != nil {
		return nil, err
	}
	if parseErr != nil {
		return nil, invalid(parseErr.Error(), "status")
	}
	if input.OrderID == uuid.Nil {
		return nil, invalid("order id required", "id")
	}

	var result *TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			return db.ClassifyReadError(err, "order")
		}
		if err := access.Authorize(input.Caller, action, current.CustomerID); err != nil {
			return err
		}
		if err := Machine.Check(current.Status, target); err != nil {
			return err
		}

		now := s.now()
		next := *current
		next.Status = target
		next.Version = current.Version + 1

		var shippedCode string
		switch target {
		case enums.OrderStatusShipped:
			code, hash, err := s.issueCode(input.DeliveryOTP)
			if err != nil {
				return err
			}
			shippedCode = code
			next.DeliveryOTPHash = &hash
			next.ShippedAt = &now
		case enums.OrderStatusDelivered:
			if err := s.checkCode(current, input.DeliveryOTP); err != nil {
				return err
			}
			next.DeliveredAt = &now
			next.PaymentStatus = enums.PaymentStatusPaid
			next.DeliveryOTPHash = nil
		case enums.OrderStatusCancelled:
			next.CancelledAt = &now
		}

		if err := repo.UpdateVersioned(ctx, &next, current.Version); err != nil {
			return err
		}

		entry := audit.NewEntry(audit.Record{
			EntityType: enums.EntityOrder,
			EntityID:   next.ID,
			Action:     enums.ActionOrderStatusChanged,
			From:       string(current.Status),
			To:         string(next.Status),
			Actor:      input.Caller,
			Notes:      input.Notes,
			Payload:    map[string]any{"paymentStatus": string(next.PaymentStatus)},
			At:         now,
		})
		if err := s.audit.Insert(tx, entry); err != nil {
			return err
		}

		if target == enums.OrderStatusShipped {
			shipped := outbox.DomainEvent{
				EventType:     enums.EventOrderShipped,
				AggregateType: enums.AggregateOrder,
				AggregateID:   next.ID,
				Actor:         input.Caller.Actor(),
				OccurredAt:    now,
				Data: payloads.OrderShippedEvent{
					OrderID:     next.ID,
					CustomerID:  next.CustomerID,
					DeliveryOTP: shippedCode,
					ShippedAt:   now,
				},
			}
			if err := s.outbox.Emit(ctx, tx, shipped); err != nil {
				return err
			}
		}

		changed := outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   next.ID,
			Actor:         input.Caller.Actor(),
			OccurredAt:    now,
			Data: payloads.OrderStatusChangedEvent{
				OrderID:       next.ID,
				CustomerID:    next.CustomerID,
				FromStatus:    current.Status,
				ToStatus:      next.Status,
				PaymentStatus: next.PaymentStatus,
				AuditEntryID:  entry.ID,
				ChangedAt:     now,
			},
		}
		if err := s.outbox.Emit(ctx, tx, changed); err != nil {
			return err
		}

		result = &TransitionResult{Order: &next, Audit: entry}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logInfo(ctx, input.OrderID, "order status updated to "+string(target))
	return result, nil
}

// issueCode returns the plaintext delivery code and its hash. A supplied code
// must already be well formed.
func (s *service) issueCode(supplied *string) (string, string, error) {
	var code string
	if supplied != nil {
		code = strings.TrimSpace(*supplied)
		if !security.IsWellFormedOTP(code) {
			return "", "", invalid("deliveryOtp must be exactly 6 digits", "deliveryOtp")
		}
	} else {
		generated, err := s.otp.Generate()
		if err != nil {
			return "", "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate delivery code")
		}
		code = generated
	}
	hash, err := s.otp.Hash(code)
	if err != nil {
		return "", "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash delivery code")
	}
	return code, hash, nil
}

// checkCode enforces presence, then shape, then equality.
func (s *service) checkCode(order *models.Order, supplied *string) error {
	if supplied == nil || strings.TrimSpace(*supplied) == "" {
		return pkgerrors.New(pkgerrors.CodeOTPRequired, "delivery otp is required to mark an order delivered")
	}
	code := strings.TrimSpace(*supplied)
	if !security.IsWellFormedOTP(code) {
		return invalid("deliveryOtp must be exactly 6 digits", "deliveryOtp")
	}
	if order.DeliveryOTPHash == nil {
		return pkgerrors.New(pkgerrors.CodeInvalidOTP, "delivery otp does not match")
	}
	ok, err := s.otp.Verify(code, *order.DeliveryOTPHash)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify delivery code")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeInvalidOTP, "delivery otp does not match")
	}
	return nil
}

func (s *service) logInfo(ctx context.Context, orderID uuid.UUID, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithOrderID(ctx, orderID.String()), msg)
}

// validateItems checks every line and returns the order total.
func validateItems(items []types.OrderItem) (decimal.Decimal, error) {
	if len(items) == 0 {
		return decimal.Zero, invalid("at least one item is required", "items")
	}
	total := decimal.Zero
	for i, item := range items {
		if item.ProductID == uuid.Nil {
			return decimal.Zero, invalid("product id required", fmt.Sprintf("items[%d].productId", i))
		}
		if item.Qty < 1 {
			return decimal.Zero, invalid("quantity must be at least 1", fmt.Sprintf("items[%d].qty", i))
		}
		if item.UnitPrice.IsNegative() {
			return decimal.Zero, invalid("unit price must not be negative", fmt.Sprintf("items[%d].unitPrice", i))
		}
		total = total.Add(item.LineTotal())
	}
	return total.Round(2), nil
}

func statusLabel(raw string) string {
	status, err := enums.ParseOrderStatus(strings.TrimSpace(raw))
	if err != nil {
		return "invalid"
	}
	return string(status)
}

func invalid(msg, field string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(map[string]any{"field": field})
}
