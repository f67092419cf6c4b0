package ledger_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"ms-lectures/internal/ledger"
	"ms-lectures/internal/logger"
	"ms-lectures/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) (*ledger.DB, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	// One connection so every query sees the same in-memory database.
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	if err := ledger.Migrate(context.Background(), bunDB); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return ledger.New(bunDB, logger.NewTestLogger()), bunDB
}

func testProvisional(ref string) *models.ProvisionalOrder {
	return &models.ProvisionalOrder{
		ID:            uuid.NewString(),
		PaymentRef:    ref,
		ProductID:     "level-1",
		CustomerEmail: "client@example.com",
		AmountMinor:   2700,
		Currency:      "eur",
		Status:        models.ProvisionalPending,
		Metadata:      map[string]string{"campaign": "spring"},
		CreatedAt:     time.Now().UTC(),
	}
}

func testOrder(ref string) *models.Order {
	return &models.Order{
		ID:            uuid.NewString(),
		PaymentRef:    ref,
		UserID:        "user-1",
		CustomerEmail: "client@example.com",
		Level:         models.LevelSimple,
		AmountMinor:   2700,
		Currency:      "eur",
		Status:        models.OrderPending,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestCreateAndGetProvisional(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	p := testProvisional("pi_create")
	require.NoError(t, db.CreateProvisional(ctx, p))

	got, err := db.ProvisionalByPaymentRef(ctx, "pi_create")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, models.ProvisionalPending, got.Status)
	assert.Equal(t, int64(2700), got.AmountMinor)
	assert.Equal(t, "spring", got.Metadata["campaign"])

	_, err = db.ProvisionalByPaymentRef(ctx, "pi_missing")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestCreateProvisionalDuplicateRef(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	require.NoError(t, db.CreateProvisional(ctx, testProvisional("pi_dup")))
	err := db.CreateProvisional(ctx, testProvisional("pi_dup"))
	assert.ErrorIs(t, err, ledger.ErrDuplicateKey)
}

func TestCreateProvisionalValidation(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()

	p := testProvisional("pi_invalid")
	p.ProductID = ""
	err := db.CreateProvisional(context.Background(), p)
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestUpdateProvisionalStatus(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	require.NoError(t, db.CreateProvisional(ctx, testProvisional("pi_status")))

	now := time.Now().UTC()
	require.NoError(t, db.UpdateProvisionalStatus(ctx, "pi_status", models.ProvisionalCompleted, &now))

	got, err := db.ProvisionalByPaymentRef(ctx, "pi_status")
	require.NoError(t, err)
	assert.Equal(t, models.ProvisionalCompleted, got.Status)
	assert.False(t, got.CompletedAt.IsZero())

	err = db.UpdateProvisionalStatus(ctx, "pi_unknown", models.ProvisionalFailed, nil)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestCreateOrderAssignsNumber(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	seq := &ledger.LocalSequencer{}
	order := testOrder("pi_numbered")
	require.NoError(t, db.CreateOrder(ctx, order, seq))

	day := ledger.DayKey(order.CreatedAt)
	assert.Equal(t, ledger.FormatOrderNumber(day, 1), order.OrderNumber)

	got, err := db.OrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, got.OrderNumber)
}

func TestCreateOrderRetriesOnNumberCollision(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	// First order consumes sequence value 1.
	first := testOrder("pi_first")
	require.NoError(t, db.CreateOrder(ctx, first, &ledger.LocalSequencer{}))

	// A fresh sequencer hands out 1 again, colliding with the existing
	// order number; the create must retry to 2 rather than fail.
	second := testOrder("pi_second")
	second.CreatedAt = first.CreatedAt
	require.NoError(t, db.CreateOrder(ctx, second, &ledger.LocalSequencer{}))

	day := ledger.DayKey(first.CreatedAt)
	assert.Equal(t, ledger.FormatOrderNumber(day, 2), second.OrderNumber)
}

func TestConcurrentOrderNumbersUnique(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	seq := &ledger.LocalSequencer{}
	const workers = 20

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- db.CreateOrder(ctx, testOrder(fmt.Sprintf("pi_conc_%d", i)), seq)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var numbers []string
	err := bunDB.NewSelect().
		Column("order_number").
		Table("orders").
		Scan(ctx, &numbers)
	require.NoError(t, err)
	require.Len(t, numbers, workers)

	seen := make(map[string]bool, workers)
	for _, n := range numbers {
		assert.False(t, seen[n], "duplicate order number %s", n)
		seen[n] = true
	}
}

func TestOrderByPaymentRef(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	order := testOrder("pi_byref")
	require.NoError(t, db.CreateOrder(ctx, order, &ledger.LocalSequencer{}))

	got, err := db.OrderByPaymentRef(ctx, "pi_byref")
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = db.OrderByPaymentRef(ctx, "pi_nope")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestUpdateOrderStatus(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	order := testOrder("pi_paid")
	require.NoError(t, db.CreateOrder(ctx, order, &ledger.LocalSequencer{}))

	require.NoError(t, db.UpdateOrderStatus(ctx, order.ID, models.OrderPaid))

	got, err := db.OrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, got.Status)
	assert.False(t, got.UpdatedAt.IsZero())

	assert.ErrorIs(t, db.UpdateOrderStatus(ctx, "missing", models.OrderPaid), ledger.ErrNotFound)
}

func TestUpdateOrderSubRecords(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	order := testOrder("pi_expert")
	require.NoError(t, db.CreateOrder(ctx, order, &ledger.LocalSequencer{}))

	review := &models.ExpertReview{ExpertID: "exp-1", Notes: "ready", ReviewedAt: time.Now().UTC()}
	require.NoError(t, db.UpdateOrderReview(ctx, order.ID, review, models.OrderAwaitingValidation))

	now := time.Now().UTC()
	validation := &models.ExpertValidation{ValidatorID: "val-1", Approved: true, ValidatedAt: now}
	require.NoError(t, db.UpdateOrderValidation(ctx, order.ID, validation, models.OrderCompleted, &now))

	got, err := db.OrderByID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Review)
	assert.Equal(t, "exp-1", got.Review.ExpertID)
	require.NotNil(t, got.Validation)
	assert.True(t, got.Validation.Approved)
	assert.Equal(t, models.OrderCompleted, got.Status)
	assert.False(t, got.CompletedAt.IsZero())
}

func TestBumpCustomerOrderStats(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, db.BumpCustomerOrderStats(ctx, "client@example.com", now))

	customer, err := db.CustomerByEmail(ctx, "client@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, customer.OrderCount)
	assert.True(t, customer.SubscriptionActive)

	require.NoError(t, db.BumpCustomerOrderStats(ctx, "client@example.com", now.Add(time.Hour)))

	customer, err = db.CustomerByEmail(ctx, "client@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, customer.OrderCount)
}
