package returns

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
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
	"github.com/angelmondragon/fulfillment-backend/pkg/pagination"
	"github.com/angelmondragon/fulfillment-backend/pkg/types"
)

const (
	metricsEntity = "return_request"

	defaultReturnWindow = 7 * 24 * time.Hour
)

// errUnchanged signals an idempotent request that needs no write.
var errUnchanged = errors.New("return request unchanged")

// OrderReader loads the order a return is raised against.
type OrderReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

// HistoryReader lists audit entries for an entity, oldest first.
type HistoryReader interface {
	ListForEntity(ctx context.Context, entityType enums.EntityType, entityID uuid.UUID) ([]models.AuditEntry, error)
}

// Service defines the return request operations exposed to the API layer.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*TransitionResult, error)
	Get(ctx context.Context, caller access.Caller, id uuid.UUID) (*models.ReturnRequest, error)
	List(ctx context.Context, input ListInput) (*ListResult, error)
	History(ctx context.Context, caller access.Caller, id uuid.UUID) ([]models.AuditEntry, error)

	StartReview(ctx context.Context, input NoteInput) (*TransitionResult, error)
	Review(ctx context.Context, input ReviewInput) (*TransitionResult, error)
	AssignWarehouse(ctx context.Context, input AssignWarehouseInput) (*TransitionResult, error)
	SchedulePickup(ctx context.Context, input SchedulePickupInput) (*TransitionResult, error)
	MarkPickedUp(ctx context.Context, input NoteInput) (*TransitionResult, error)
	Receive(ctx context.Context, input ReceiveInput) (*TransitionResult, error)
	Assess(ctx context.Context, input AssessInput) (*TransitionResult, error)
	FinalDecision(ctx context.Context, input FinalDecisionInput) (*TransitionResult, error)
	ProcessRefund(ctx context.Context, input NoteInput) (*TransitionResult, error)
	Complete(ctx context.Context, input NoteInput) (*TransitionResult, error)
	Cancel(ctx context.Context, input NoteInput) (*TransitionResult, error)
	UpdatePickupCharge(ctx context.Context, input UpdatePickupChargeInput) (*TransitionResult, error)
}

// ServiceParams wires the return service dependencies.
type ServiceParams struct {
	Repo         Repository
	Orders       OrderReader
	Tx           db.TxRunner
	Audit        audit.Writer
	History      HistoryReader
	Outbox       outbox.Emitter
	Retrier      db.Retrier
	Cache        *cache.Snapshots[models.ReturnRequest]
	Metrics      *metrics.TransitionMetrics
	Logger       *logger.Logger
	Clock        func() time.Time
	ReturnWindow time.Duration
}

type service struct {
	repo    Repository
	orders  OrderReader
	tx      db.TxRunner
	audit   audit.Writer
	history HistoryReader
	outbox  outbox.Emitter
	retrier db.Retrier
	cache   *cache.Snapshots[models.ReturnRequest]
	metrics *metrics.TransitionMetrics
	logg    *logger.Logger
	now     func() time.Time
	window  time.Duration
}

// NewService builds the return service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("returns repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order reader required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit writer required")
	}
	if params.History == nil {
		return nil, fmt.Errorf("history reader required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	window := params.ReturnWindow
	if window <= 0 {
		window = defaultReturnWindow
	}
	return &service{
		repo:    params.Repo,
		orders:  params.Orders,
		tx:      params.Tx,
		audit:   params.Audit,
		history: params.History,
		outbox:  params.Outbox,
		retrier: params.Retrier,
		cache:   params.Cache,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     func() time.Time { return clock().UTC() },
		window:  window,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*TransitionResult, error) {
	started := time.Now()
	result, err := s.create(ctx, input)
	s.metrics.Observe(metricsEntity, "create", started, err)
	return result, err
}

func (s *service) create(ctx context.Context, input CreateInput) (*TransitionResult, error) {
	if err := access.Authorize(input.Caller, access.ActionReturnCreate, uuid.Nil); err != nil {
		return nil, err
	}
	if input.OrderID == uuid.Nil {
		return nil, invalid("order id required", "orderId")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, invalid("return reason required", "returnReason")
	}

	order, err := s.loadOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(input.Caller, access.ActionReturnCreate, order.CustomerID); err != nil {
		return nil, err
	}
	now := s.now()
	if err := checkReturnWindow(order, now, s.window); err != nil {
		return nil, err
	}

	var result *TransitionResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.ListByOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		items, err := buildItems(order, input.Items, existing)
		if err != nil {
			return err
		}

		ret := &models.ReturnRequest{
			ID:               uuid.New(),
			OrderID:          order.ID,
			CustomerID:       order.CustomerID,
			Items:            items,
			ReturnReason:     reason,
			CustomerComments: input.CustomerComments,
			EvidenceImages:   append([]string{}, input.EvidenceImages...),
			Status:           Machine.Initial(),
			RequestedAt:      now,
			WarehouseManagement: types.WarehouseManagement{
				StatusUpdates: []types.StatusUpdate{},
			},
			Version: 1,
		}
		if err := repo.Create(ctx, ret); err != nil {
			return err
		}

		entry := audit.NewEntry(audit.Record{
			EntityType: enums.EntityReturnRequest,
			EntityID:   ret.ID,
			Action:     enums.ActionReturnCreated,
			To:         string(ret.Status),
			Actor:      input.Caller,
			Notes:      input.CustomerComments,
			Payload: map[string]any{
				"orderId":   ret.OrderID.String(),
				"itemCount": len(ret.Items),
				"reason":    ret.ReturnReason,
			},
			At: now,
		})
		if err := s.audit.Insert(tx, entry); err != nil {
			return err
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventReturnCreated,
			AggregateType: enums.AggregateReturnRequest,
			AggregateID:   ret.ID,
			Actor:         input.Caller.Actor(),
			OccurredAt:    now,
			Data: payloads.ReturnCreatedEvent{
				ReturnID:    ret.ID,
				OrderID:     ret.OrderID,
				CustomerID:  ret.CustomerID,
				ItemCount:   len(ret.Items),
				Reason:      ret.ReturnReason,
				RequestedAt: now,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}

		result = &TransitionResult{Return: ret, Audit: entry}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logInfo(ctx, result.Return.ID, "return request created")
	return result, nil
}

func (s *service) Get(ctx context.Context, caller access.Caller, id uuid.UUID) (*models.ReturnRequest, error) {
	if err := access.Authorize(caller, access.ActionReturnRead, uuid.Nil); err != nil {
		return nil, err
	}
	if id == uuid.Nil {
		return nil, invalid("return id required", "id")
	}
	ret, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(caller, access.ActionReturnRead, ret.CustomerID); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *service) List(ctx context.Context, input ListInput) (*ListResult, error) {
	if err := access.Authorize(input.Caller, access.ActionReturnList, uuid.Nil); err != nil {
		return nil, err
	}
	filter := ListFilter{OrderID: input.OrderID, CustomerID: input.CustomerID}
	if input.Caller.Role == enums.RoleCustomer {
		own := input.Caller.UserID
		filter.CustomerID = &own
	}
	if raw := strings.TrimSpace(input.Status); raw != "" {
		status, err := enums.ParseReturnStatus(raw)
		if err != nil {
			return nil, invalid(err.Error(), "status")
		}
		filter.Status = &status
	}
	if _, err := pagination.Decode(input.Page.Cursor, filter.scope()); err != nil {
		return nil, invalid("cursor is malformed or belongs to another filter", "cursor")
	}

	var result *ListResult
	err := s.retrier.Do(ctx, "list return requests", func(ctx context.Context) error {
		found, err := s.repo.List(ctx, filter, input.Page)
		if err != nil {
			return err
		}
		result = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) History(ctx context.Context, caller access.Caller, id uuid.UUID) ([]models.AuditEntry, error) {
	if _, err := s.Get(ctx, caller, id); err != nil {
		return nil, err
	}
	var entries []models.AuditEntry
	err := s.retrier.Do(ctx, "list return history", func(ctx context.Context) error {
		found, err := s.history.ListForEntity(ctx, enums.EntityReturnRequest, id)
		if err != nil {
			return err
		}
		entries = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	if cached, ok := s.cache.Get(ctx, id); ok {
		return cached, nil
	}
	var ret *models.ReturnRequest
	err := s.retrier.Do(ctx, "load return request", func(ctx context.Context) error {
		found, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return db.ClassifyReadError(err, "return request")
		}
		ret = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.Put(ctx, id, ret)
	return ret, nil
}

func (s *service) loadOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order *models.Order
	err := s.retrier.Do(ctx, "load order", func(ctx context.Context) error {
		found, err := s.orders.FindByID(ctx, id)
		if err != nil {
			return db.ClassifyReadError(err, "order")
		}
		order = found
		return nil
	})
	return order, err
}

// step describes one mutation of an existing return request. apply receives
// the stored row and a deep copy to modify; it returns the audit payload.
type step struct {
	name        string
	action      access.Action
	auditAction enums.AuditAction
	returnID    uuid.UUID
	caller      access.Caller
	notes       *string
	// from lists the statuses the operation may start in. The stored status
	// is checked against it before check runs.
	from   []enums.ReturnStatus
	check  func() error
	apply  func(cur, next *models.ReturnRequest, now time.Time) (map[string]any, error)
	events func(next *models.ReturnRequest, now time.Time) []outbox.DomainEvent
}

func (s *service) run(ctx context.Context, st step) (*TransitionResult, error) {
	started := time.Now()
	result, err := s.execute(ctx, st)
	s.metrics.Observe(metricsEntity, st.name, started, err)
	if (err == nil && result.Audit != nil) || pkgerrors.IsCode(err, pkgerrors.CodeConcurrentModification) {
		s.cache.Invalidate(ctx, st.returnID)
	}
	return result, err
}

func (s *service) execute(ctx context.Context, st step) (*TransitionResult, error) {
	if err := access.Authorize(st.caller, st.action, uuid.Nil); err != nil {
		return nil, err
	}
	if st.returnID == uuid.Nil {
		return nil, invalid("return id required", "id")
	}

	var result *TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, st.returnID)
		if err != nil {
			return db.ClassifyReadError(err, "return request")
		}
		if err := access.Authorize(st.caller, st.action, current.CustomerID); err != nil {
			return err
		}
		if err := Machine.CheckSource(current.Status, st.from...); err != nil {
			return err
		}
		if st.check != nil {
			if err := st.check(); err != nil {
				return err
			}
		}

		now := s.now()
		next := cloneReturn(current)
		payload, err := st.apply(current, next, now)
		if errors.Is(err, errUnchanged) {
			result = &TransitionResult{Return: current}
			return nil
		}
		if err != nil {
			return err
		}

		next.Version = current.Version + 1
		if err := repo.UpdateVersioned(ctx, next, current.Version); err != nil {
			return err
		}

		record := audit.Record{
			EntityType: enums.EntityReturnRequest,
			EntityID:   next.ID,
			Action:     st.auditAction,
			Actor:      st.caller,
			Notes:      st.notes,
			Payload:    payload,
			At:         now,
		}
		statusChanged := next.Status != current.Status
		if statusChanged {
			record.From = string(current.Status)
			record.To = string(next.Status)
		}
		entry := audit.NewEntry(record)
		if err := s.audit.Insert(tx, entry); err != nil {
			return err
		}

		var events []outbox.DomainEvent
		if statusChanged {
			events = append(events, outbox.DomainEvent{
				EventType:     enums.EventReturnStatusChanged,
				AggregateType: enums.AggregateReturnRequest,
				AggregateID:   next.ID,
				Actor:         st.caller.Actor(),
				OccurredAt:    now,
				Data: payloads.ReturnStatusChangedEvent{
					ReturnID:     next.ID,
					OrderID:      next.OrderID,
					CustomerID:   next.CustomerID,
					Action:       st.auditAction,
					FromStatus:   current.Status,
					ToStatus:     next.Status,
					Notes:        st.notes,
					AuditEntryID: entry.ID,
					ChangedAt:    now,
				},
			})
		}
		if st.events != nil {
			events = append(events, st.events(next, now)...)
		}
		for _, event := range events {
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return err
			}
		}

		result = &TransitionResult{Return: next, Audit: entry}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Audit != nil {
		s.logInfo(ctx, st.returnID, "return request "+st.name)
	}
	return result, nil
}

// moveTo checks cur.Status -> to against the sources this operation owns and
// sets the new status on next.
func moveTo(cur, next *models.ReturnRequest, to enums.ReturnStatus, sources ...enums.ReturnStatus) error {
	if err := Machine.CheckFrom(cur.Status, to, sources...); err != nil {
		return err
	}
	next.Status = to
	return nil
}

func appendStatusUpdate(next *models.ReturnRequest, now time.Time, notes *string, by uuid.UUID) {
	next.WarehouseManagement.StatusUpdates = append(next.WarehouseManagement.StatusUpdates, types.StatusUpdate{
		ToStatus:  next.Status,
		UpdatedAt: now,
		Notes:     notes,
		UpdatedBy: by,
	})
}

func (s *service) logInfo(ctx context.Context, returnID uuid.UUID, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithReturnID(ctx, returnID.String()), msg)
}

func invalid(msg, field string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(map[string]any{"field": field})
}

func illegal(msg string, status enums.ReturnStatus) error {
	return pkgerrors.New(pkgerrors.CodeIllegalTransition, msg).WithDetails(map[string]any{"status": string(status)})
}
