package returns

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/internal/audit"
	"github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/fulfillment-backend/pkg/pagination"
	"github.com/angelmondragon/fulfillment-backend/pkg/types"
)

func setupReturnsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, conn.AutoMigrate(&models.Order{}, &models.ReturnRequest{}, &models.AuditEntry{}, &models.OutboxEvent{}))
	return conn
}

func seedReturn(t *testing.T, repo Repository, customerID, orderID uuid.UUID, status enums.ReturnStatus, createdAt time.Time) *models.ReturnRequest {
	t.Helper()
	ret := returnAt(status, "120", 1)
	ret.CustomerID = customerID
	ret.OrderID = orderID
	ret.CreatedAt = createdAt
	require.NoError(t, repo.Create(context.Background(), ret))
	return ret
}

func TestRepositoryRoundTripsDocuments(t *testing.T) {
	conn := setupReturnsTestDB(t)
	repo := NewRepository(conn)
	ret := seedReturn(t, repo, uuid.New(), uuid.New(), enums.ReturnStatusRefundApproved, fixedNow)

	found, err := repo.FindByID(context.Background(), ret.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ReturnStatusRefundApproved, found.Status)
	require.Len(t, found.Items, 1)
	assert.True(t, found.Items[0].OriginalPrice.Equal(decimal.NewFromInt(120)))
	require.NotNil(t, found.AdminReview)
	require.NotNil(t, found.AdminReview.PickupCharge)
	assert.True(t, found.AdminReview.PickupCharge.IsFree)
	require.NotNil(t, found.WarehouseManagement.QualityAssessment)
	assert.Equal(t, 7, found.WarehouseManagement.QualityAssessment.QualityScore)
	require.NotNil(t, found.Refund)
	assert.True(t, found.Refund.AdminDecision.FinalCoins.Equal(decimal.NewFromInt(3500)))

	_, err = repo.FindByID(context.Background(), uuid.New())
	assert.True(t, db.IsNotFound(err))
}

func TestRepositoryListPagesNewestFirst(t *testing.T) {
	conn := setupReturnsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	customerID := uuid.New()

	var seeded []*models.ReturnRequest
	for i := 0; i < 5; i++ {
		seeded = append(seeded, seedReturn(t, repo, customerID, uuid.New(), enums.ReturnStatusRequested, fixedNow.Add(time.Duration(i)*time.Minute)))
	}
	seedReturn(t, repo, uuid.New(), uuid.New(), enums.ReturnStatusRequested, fixedNow)

	filter := ListFilter{CustomerID: &customerID}
	first, err := repo.List(ctx, filter, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.Equal(t, seeded[4].ID, first.Items[0].ID)
	assert.Equal(t, seeded[3].ID, first.Items[1].ID)
	require.NotEmpty(t, first.NextCursor)

	second, err := repo.List(ctx, filter, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Items, 2)
	assert.Equal(t, seeded[2].ID, second.Items[0].ID)
	assert.Equal(t, seeded[1].ID, second.Items[1].ID)

	third, err := repo.List(ctx, filter, pagination.Params{Limit: 2, Cursor: second.NextCursor})
	require.NoError(t, err)
	require.Len(t, third.Items, 1)
	assert.Equal(t, seeded[0].ID, third.Items[0].ID)
	assert.Empty(t, third.NextCursor)

	other := uuid.New()
	_, err = repo.List(ctx, ListFilter{CustomerID: &other}, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	assert.ErrorIs(t, err, pagination.ErrInvalidCursor)
}

func TestRepositoryListFilters(t *testing.T) {
	conn := setupReturnsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	customerID := uuid.New()
	orderID := uuid.New()

	seedReturn(t, repo, customerID, orderID, enums.ReturnStatusRequested, fixedNow)
	approved := seedReturn(t, repo, customerID, orderID, enums.ReturnStatusApproved, fixedNow.Add(time.Minute))
	seedReturn(t, repo, customerID, uuid.New(), enums.ReturnStatusApproved, fixedNow.Add(2*time.Minute))

	status := enums.ReturnStatusApproved
	res, err := repo.List(ctx, ListFilter{OrderID: &orderID, Status: &status}, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, approved.ID, res.Items[0].ID)

	byOrder, err := repo.ListByOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Len(t, byOrder, 2)
}

func TestRepositoryUpdateVersionedRejectsStaleWrite(t *testing.T) {
	conn := setupReturnsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	ret := seedReturn(t, repo, uuid.New(), uuid.New(), enums.ReturnStatusRequested, fixedNow)

	approved := cloneReturn(ret)
	approved.Status = enums.ReturnStatusApproved
	approved.Version = 2
	require.NoError(t, repo.UpdateVersioned(ctx, approved, 1))

	rejected := cloneReturn(ret)
	rejected.Status = enums.ReturnStatusRejected
	rejected.Version = 2
	err := repo.UpdateVersioned(ctx, rejected, 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConcurrentModification))

	found, err := repo.FindByID(ctx, ret.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ReturnStatusApproved, found.Status)
	assert.Equal(t, 2, found.Version)
}

func TestServiceCreateAndCancelAgainstSQLite(t *testing.T) {
	conn := setupReturnsTestDB(t)
	ctx := context.Background()
	customerID := uuid.New()
	productID := uuid.New()

	order := deliveredOrder(customerID, fixedNow.Add(-time.Hour), types.OrderItem{ProductID: productID, Qty: 1, UnitPrice: decimal.NewFromInt(80)})
	order.TotalAmount = decimal.NewFromInt(80)
	require.NoError(t, conn.Create(order).Error)

	client := db.NewFromGorm(conn)
	retrier := db.NewRetrier(time.Millisecond)
	auditRepo := audit.NewRepository(conn)
	tick := fixedNow
	svc, err := NewService(ServiceParams{
		Repo:    NewRepository(conn),
		Orders:  orderLookup{conn: conn},
		Tx:      db.NewRetryingTx(client, retrier),
		Audit:   auditRepo,
		History: auditRepo,
		Outbox:  outbox.NewService(outbox.NewRepository(conn), nil),
		Retrier: retrier,
		Clock: func() time.Time {
			tick = tick.Add(time.Second)
			return tick
		},
	})
	require.NoError(t, err)

	created, err := svc.Create(ctx, CreateInput{
		OrderID: order.ID,
		Items:   []ItemInput{{ProductID: productID, Qty: 1}},
		Reason:  "not as described",
		Caller:  customer(customerID),
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateInput{
		OrderID: order.ID,
		Items:   []ItemInput{{ProductID: productID, Qty: 1}},
		Reason:  "again",
		Caller:  customer(customerID),
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Cancel(ctx, NoteInput{ReturnID: created.Return.ID, Caller: customer(customerID)})
	require.NoError(t, err)

	// A cancelled return frees its quantity.
	_, err = svc.Create(ctx, CreateInput{
		OrderID: order.ID,
		Items:   []ItemInput{{ProductID: productID, Qty: 1}},
		Reason:  "changed my mind",
		Caller:  customer(customerID),
	})
	require.NoError(t, err)

	history, err := svc.History(ctx, customer(customerID), created.Return.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, enums.ActionReturnCreated, history[0].Action)
	assert.Equal(t, "cancelled", *history[1].ToStatus)

	var events int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&events).Error)
	assert.Equal(t, int64(3), events)
}

type orderLookup struct {
	conn *gorm.DB
}

func (o orderLookup) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := o.conn.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}
