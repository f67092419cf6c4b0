package reconcile

import (
	"context"
	"errors"
	"fmt"

	"ms-lectures/internal/ledger"
	"ms-lectures/internal/logger"
	"ms-lectures/internal/models"

	"github.com/google/uuid"
)

// Ledger is the read-only slice of the order ledger the reconciler needs.
type Ledger interface {
	OrderByID(ctx context.Context, id string) (*models.Order, error)
	OrderByPaymentRef(ctx context.Context, ref string) (*models.Order, error)
	ProvisionalByPaymentRef(ctx context.Context, ref string) (*models.ProvisionalOrder, error)
}

// Reconciler resolves a lookup key (internal id or payment reference) into
// one unified order view. It is read-only: it never creates, upgrades or
// merges records, so the result is deterministic for a given ledger state.
type Reconciler struct {
	Ledger Ledger
	Log    *logger.Logger
}

func New(l Ledger, log *logger.Logger) *Reconciler {
	return &Reconciler{Ledger: l, Log: log}
}

// provisionalToUnified maps the provisional status vocabulary onto the
// unified one. The mapping is total over the five provisional statuses.
var provisionalToUnified = map[models.ProvisionalStatus]models.OrderStatus{
	models.ProvisionalPending:    models.OrderPending,
	models.ProvisionalProcessing: models.OrderProcessing,
	models.ProvisionalCompleted:  models.OrderPaid,
	models.ProvisionalFailed:     models.OrderFailed,
	models.ProvisionalCancelled:  models.OrderRefunded,
}

// MapProvisionalStatus exposes the mapping for callers that only need the
// vocabulary translation.
func MapProvisionalStatus(s models.ProvisionalStatus) models.OrderStatus {
	if mapped, ok := provisionalToUnified[s]; ok {
		return mapped
	}
	return models.OrderPending
}

// Resolve looks up the unified view for key. A uuid-shaped key addresses
// the full order directly with no fallback; anything else is treated as a
// payment reference, preferring the full order and falling back to a view
// synthesized from the provisional record. Immediately after payment the
// storefront polls with the payment reference before the "complete your
// profile" step has produced a full order; the fallback is what keeps that
// window from reading as not-found.
func (r *Reconciler) Resolve(ctx context.Context, key string) (*models.UnifiedOrder, error) {
	if _, err := uuid.Parse(key); err == nil {
		order, err := r.Ledger.OrderByID(ctx, key)
		if err != nil {
			return nil, err
		}
		return fromOrder(order), nil
	}

	order, err := r.Ledger.OrderByPaymentRef(ctx, key)
	if err == nil {
		return fromOrder(order), nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return nil, err
	}

	provisional, err := r.Ledger.ProvisionalByPaymentRef(ctx, key)
	if err != nil {
		return nil, err
	}
	r.Log.LogOrder("FALLBACK", key, "Serving unified view from provisional order")
	return fromProvisional(provisional), nil
}

func fromOrder(o *models.Order) *models.UnifiedOrder {
	view := &models.UnifiedOrder{
		ID:              o.ID,
		ReferenceNumber: o.OrderNumber,
		PaymentRef:      o.PaymentRef,
		Status:          o.Status,
		AmountMinor:     o.AmountMinor,
		Currency:        o.Currency,
		CustomerEmail:   o.CustomerEmail,
		ProductID:       fmt.Sprintf("level-%d", o.Level),
		AccessGranted:   orderGrantsAccess(o.Status),
		Source:          models.SourceFullOrder,
	}
	if o.Content != nil {
		view.SanctuaryURL = o.Content.SanctuaryURL
	}
	return view
}

func orderGrantsAccess(s models.OrderStatus) bool {
	switch s {
	case models.OrderPaid, models.OrderProcessing, models.OrderAwaitingValidation, models.OrderCompleted:
		return true
	default:
		return false
	}
}

func fromProvisional(p *models.ProvisionalOrder) *models.UnifiedOrder {
	granted := p.Status == models.ProvisionalCompleted
	view := &models.UnifiedOrder{
		ID:              p.ID,
		ReferenceNumber: "TEMP-" + p.PaymentRef,
		PaymentRef:      p.PaymentRef,
		Status:          MapProvisionalStatus(p.Status),
		AmountMinor:     p.AmountMinor,
		Currency:        p.Currency,
		CustomerEmail:   p.CustomerEmail,
		ProductID:       p.ProductID,
		AccessGranted:   granted,
		Source:          models.SourceProvisionalOrder,
	}
	if granted {
		view.Message = "Payment successful. Please complete your profile."
	}
	return view
}
