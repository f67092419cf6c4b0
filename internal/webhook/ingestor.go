package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ms-lectures/internal/ledger"
	"ms-lectures/internal/logger"
	"ms-lectures/internal/models"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

var (
	ErrSignatureInvalid = errors.New("webhook signature invalid")
	ErrUnknownReference = errors.New("webhook references no ledger record")
)

// Ledger is the mutable slice of the order ledger the ingestor needs.
type Ledger interface {
	ProvisionalByPaymentRef(ctx context.Context, ref string) (*models.ProvisionalOrder, error)
	UpdateProvisionalStatus(ctx context.Context, ref string, status models.ProvisionalStatus, completedAt *time.Time) error
	OrderByPaymentRef(ctx context.Context, ref string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) error
	BumpCustomerOrderStats(ctx context.Context, email string, at time.Time) error
}

// EventPublisher streams applied transitions to the event bus.
type EventPublisher interface {
	PublishPaymentEvent(event models.PaymentEvent) error
}

// Ingestor applies payment-provider lifecycle events to the ledger. The
// provider retries on any non-2xx, so every mutation here must be safe to
// re-enter: the ingestor re-reads current state and only transitions
// forward, making duplicate and out-of-order delivery no-ops rather than
// errors.
type Ingestor struct {
	Ledger        Ledger
	Publisher     EventPublisher
	SigningSecret string
	Log           *logger.Logger
}

func NewIngestor(l Ledger, pub EventPublisher, secret string, log *logger.Logger) *Ingestor {
	return &Ingestor{Ledger: l, Publisher: pub, SigningSecret: secret, Log: log}
}

// Process verifies the signature over the raw payload bytes and dispatches
// by event kind. The payload must not have been through any JSON re-parse
// before this point or the recomputed signature will not match.
func (i *Ingestor) Process(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := webhook.ConstructEvent(payload, sigHeader, i.SigningSecret)
	if err != nil {
		i.Log.Warn("WEBHOOK", fmt.Sprintf("Signature verification failed: %v", err))
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	ref, err := paymentRef(event)
	if err != nil {
		i.Log.Warn("WEBHOOK", fmt.Sprintf("Event %s carries no payment reference: %v", event.ID, err))
		return nil
	}

	switch event.Type {
	case "payment_intent.succeeded":
		return i.applySucceeded(ctx, ref)
	case "payment_intent.payment_failed", "payment_intent.canceled":
		return i.applyFailed(ctx, ref, string(event.Type))
	default:
		// Unknown kinds are acknowledged without mutation so new provider
		// event types never bounce into the retry queue.
		i.Log.LogWebhook(string(event.Type), ref, "Ignored event kind")
		return nil
	}
}

func paymentRef(event stripe.Event) (string, error) {
	var object struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(event.Data.Raw, &object); err != nil {
		return "", err
	}
	if object.ID == "" {
		return "", errors.New("empty object id")
	}
	return object.ID, nil
}

// applySucceeded moves the provisional record to completed and the full
// order (when it already exists at event time) to paid. The customer
// aggregate bump and the event publish are best-effort secondary writes:
// their failure never fails the primary transition or the HTTP response.
func (i *Ingestor) applySucceeded(ctx context.Context, ref string) error {
	now := time.Now().UTC()
	mutated := false
	var email string

	provisional, err := i.Ledger.ProvisionalByPaymentRef(ctx, ref)
	switch {
	case err == nil:
		email = provisional.CustomerEmail
		if provisional.Status != models.ProvisionalCompleted {
			if err := i.Ledger.UpdateProvisionalStatus(ctx, ref, models.ProvisionalCompleted, &now); err != nil {
				return err
			}
			mutated = true
		}
	case errors.Is(err, ledger.ErrNotFound):
		provisional = nil
	default:
		return err
	}

	order, err := i.Ledger.OrderByPaymentRef(ctx, ref)
	switch {
	case err == nil:
		if order.Status == models.OrderPending {
			if err := i.Ledger.UpdateOrderStatus(ctx, order.ID, models.OrderPaid); err != nil {
				return err
			}
			mutated = true
		}
	case errors.Is(err, ledger.ErrNotFound):
		order = nil
	default:
		return err
	}

	if provisional == nil && order == nil {
		// The checkout intent should have written the provisional record
		// before the provider could deliver an event; a miss here is most
		// likely a commit race, so surface it and let the provider retry.
		return fmt.Errorf("%w: %s", ErrUnknownReference, ref)
	}

	if !mutated {
		i.Log.LogWebhook("payment_intent.succeeded", ref, "Redelivery, already terminal")
		return nil
	}

	if email != "" {
		if err := i.Ledger.BumpCustomerOrderStats(ctx, email, now); err != nil {
			i.Log.Warn("WEBHOOK", fmt.Sprintf("Customer stats bump failed for %s: %v", ref, err))
		}
	}

	if i.Publisher != nil {
		event := models.PaymentEvent{
			Type:       "payment.succeeded",
			PaymentRef: ref,
			Status:     string(models.OrderPaid),
			Timestamp:  now.Unix(),
		}
		if order != nil {
			event.OrderID = order.ID
		}
		if err := i.Publisher.PublishPaymentEvent(event); err != nil {
			i.Log.Warn("KAFKA", fmt.Sprintf("Failed to publish success event for %s: %v", ref, err))
		}
	}

	i.Log.LogWebhook("payment_intent.succeeded", ref, "Applied")
	return nil
}

// applyFailed sets both records to failed. A record already completed stays
// completed: transitions only move forward, which is what makes out-of-order
// delivery harmless.
func (i *Ingestor) applyFailed(ctx context.Context, ref, kind string) error {
	mutated := false

	provisional, err := i.Ledger.ProvisionalByPaymentRef(ctx, ref)
	switch {
	case err == nil:
		if provisional.Status != models.ProvisionalCompleted && provisional.Status != models.ProvisionalFailed {
			if err := i.Ledger.UpdateProvisionalStatus(ctx, ref, models.ProvisionalFailed, nil); err != nil {
				return err
			}
			mutated = true
		}
	case errors.Is(err, ledger.ErrNotFound):
		provisional = nil
	default:
		return err
	}

	order, err := i.Ledger.OrderByPaymentRef(ctx, ref)
	switch {
	case err == nil:
		if order.Status != models.OrderCompleted && order.Status != models.OrderFailed && order.Status != models.OrderRefunded {
			if err := i.Ledger.UpdateOrderStatus(ctx, order.ID, models.OrderFailed); err != nil {
				return err
			}
			mutated = true
		}
	case errors.Is(err, ledger.ErrNotFound):
		order = nil
	default:
		return err
	}

	if provisional == nil && order == nil {
		return fmt.Errorf("%w: %s", ErrUnknownReference, ref)
	}

	if mutated && i.Publisher != nil {
		event := models.PaymentEvent{
			Type:       "payment.failed",
			PaymentRef: ref,
			Status:     string(models.OrderFailed),
			Timestamp:  time.Now().UTC().Unix(),
		}
		if order != nil {
			event.OrderID = order.ID
		}
		if err := i.Publisher.PublishPaymentEvent(event); err != nil {
			i.Log.Warn("KAFKA", fmt.Sprintf("Failed to publish failure event for %s: %v", ref, err))
		}
	}

	i.Log.LogWebhook(kind, ref, "Applied")
	return nil
}
