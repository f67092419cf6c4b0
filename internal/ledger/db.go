package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-lectures/internal/logger"
	"ms-lectures/internal/models"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

func newCustomerID() string { return uuid.NewString() }

// DB is the order ledger access layer: the only component permitted to
// mutate provisional orders, full orders and customer aggregates.
type DB struct {
	Bun *bun.DB
	Log *logger.Logger
}

func New(bunDB *bun.DB, log *logger.Logger) *DB {
	return &DB{Bun: bunDB, Log: log}
}

// ---------------- PROVISIONAL ORDERS ----------------

func (d *DB) CreateProvisional(ctx context.Context, p *models.ProvisionalOrder) error {
	if p.PaymentRef == "" || p.ProductID == "" {
		return fmt.Errorf("%w: payment_ref and product_id are required", ErrValidation)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := d.Bun.NewInsert().Model(p).Exec(ctx)
	if err != nil {
		d.Log.Error("DATABASE", fmt.Sprintf("Failed to create provisional order %s: %v", p.PaymentRef, err))
		return mapError(err)
	}
	d.Log.LogDatabase("INSERT", "provisional_orders", p.PaymentRef)
	return nil
}

func (d *DB) ProvisionalByPaymentRef(ctx context.Context, ref string) (*models.ProvisionalOrder, error) {
	var p models.ProvisionalOrder
	err := d.Bun.NewSelect().
		Model(&p).
		Where("payment_ref = ?", ref).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

// UpdateProvisionalStatus is a field-scoped write so it never clobbers
// concurrent writes to other columns of the same record.
func (d *DB) UpdateProvisionalStatus(ctx context.Context, ref string, status models.ProvisionalStatus, completedAt *time.Time) error {
	q := d.Bun.NewUpdate().
		Model((*models.ProvisionalOrder)(nil)).
		Set("status = ?", status).
		Where("payment_ref = ?", ref)
	if completedAt != nil {
		q = q.Set("completed_at = ?", *completedAt)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return mapError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	d.Log.LogDatabase("UPDATE", "provisional_orders", fmt.Sprintf("%s -> %s", ref, status))
	return nil
}

// ---------------- FULL ORDERS ----------------

const maxNumberRetries = 5

// CreateOrder inserts a full order, assigning its date-coded order number
// from the sequencer. A unique index on order_number is the backstop for
// races between instances: on a duplicate the insert retries with a fresh
// sequence value rather than trusting read-then-write.
func (d *DB) CreateOrder(ctx context.Context, order *models.Order, seq Sequencer) error {
	if order.PaymentRef == "" || !order.Level.Valid() {
		return fmt.Errorf("%w: payment_ref and a valid level are required", ErrValidation)
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	day := DayKey(order.CreatedAt)
	for attempt := 0; attempt < maxNumberRetries; attempt++ {
		n, err := seq.Next(ctx, day)
		if err != nil {
			return fmt.Errorf("%w: sequencer: %v", ErrStoreUnavailable, err)
		}
		order.OrderNumber = FormatOrderNumber(day, n)

		_, err = d.Bun.NewInsert().Model(order).Exec(ctx)
		if err == nil {
			d.Log.LogDatabase("INSERT", "orders", order.OrderNumber)
			return nil
		}
		if errors.Is(mapError(err), ErrDuplicateKey) {
			d.Log.Warn("DATABASE", fmt.Sprintf("Order number collision on %s, retrying", order.OrderNumber))
			continue
		}
		d.Log.Error("DATABASE", fmt.Sprintf("Failed to create order %s: %v", order.ID, err))
		return mapError(err)
	}
	return fmt.Errorf("%w: exhausted order number retries for day %s", ErrDuplicateKey, day)
}

func (d *DB) OrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return &order, nil
}

func (d *DB) OrderByPaymentRef(ctx context.Context, ref string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("payment_ref = ?", ref).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return &order, nil
}

func (d *DB) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return mapError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	d.Log.LogDatabase("UPDATE", "orders", fmt.Sprintf("%s -> %s", id, status))
	return nil
}

func (d *DB) UpdateOrderContent(ctx context.Context, id string, content *models.ReadingContent) error {
	order := &models.Order{ID: id, Content: content, UpdatedAt: time.Now().UTC()}
	res, err := d.Bun.NewUpdate().
		Model(order).
		Column("content", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return mapError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *DB) UpdateOrderReview(ctx context.Context, id string, review *models.ExpertReview, status models.OrderStatus) error {
	order := &models.Order{ID: id, Review: review, Status: status, UpdatedAt: time.Now().UTC()}
	res, err := d.Bun.NewUpdate().
		Model(order).
		Column("review", "status", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return mapError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *DB) UpdateOrderValidation(ctx context.Context, id string, validation *models.ExpertValidation, status models.OrderStatus, completedAt *time.Time) error {
	order := &models.Order{ID: id, Validation: validation, Status: status, UpdatedAt: time.Now().UTC()}
	columns := []string{"validation", "status", "updated_at"}
	if completedAt != nil {
		order.CompletedAt = *completedAt
		columns = append(columns, "completed_at")
	}
	res, err := d.Bun.NewUpdate().
		Model(order).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return mapError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------- CUSTOMER AGGREGATES ----------------

// BumpCustomerOrderStats increments the order counter, stamps the last
// order time and flips the subscription flag. Creates the aggregate row on
// first sight of the email.
func (d *DB) BumpCustomerOrderStats(ctx context.Context, email string, at time.Time) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	res, err := d.Bun.NewUpdate().
		Model((*models.Customer)(nil)).
		Set("order_count = order_count + 1").
		Set("last_order_at = ?", at).
		Set("subscription_active = ?", true).
		Where("email = ?", email).
		Exec(ctx)
	if err != nil {
		return mapError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	customer := &models.Customer{
		ID:                 newCustomerID(),
		Email:              email,
		OrderCount:         1,
		LastOrderAt:        at,
		SubscriptionActive: true,
		CreatedAt:          time.Now().UTC(),
	}
	if _, err := d.Bun.NewInsert().Model(customer).Exec(ctx); err != nil {
		// Lost the race to a concurrent insert for the same email; the
		// counter bump retries once through the update path.
		if errors.Is(mapError(err), ErrDuplicateKey) {
			_, err = d.Bun.NewUpdate().
				Model((*models.Customer)(nil)).
				Set("order_count = order_count + 1").
				Set("last_order_at = ?", at).
				Set("subscription_active = ?", true).
				Where("email = ?", email).
				Exec(ctx)
		}
		if err != nil {
			return mapError(err)
		}
	}
	return nil
}

func (d *DB) CustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	var customer models.Customer
	err := d.Bun.NewSelect().
		Model(&customer).
		Where("email = ?", email).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return &customer, nil
}
