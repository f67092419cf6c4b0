package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-lectures/internal/delivery"
	"ms-lectures/internal/ledger"
	"ms-lectures/internal/logger"
	"ms-lectures/internal/models"

	"github.com/google/uuid"
)

var (
	ErrInvalidLevel = errors.New("invalid reading level")
	ErrInvalidState = errors.New("order is not in a valid state for this operation")
)

// DBLayer is the slice of the order ledger the service writes through.
type DBLayer interface {
	CreateProvisional(ctx context.Context, p *models.ProvisionalOrder) error
	ProvisionalByPaymentRef(ctx context.Context, ref string) (*models.ProvisionalOrder, error)
	CreateOrder(ctx context.Context, order *models.Order, seq ledger.Sequencer) error
	OrderByID(ctx context.Context, id string) (*models.Order, error)
	UpdateOrderReview(ctx context.Context, id string, review *models.ExpertReview, status models.OrderStatus) error
	UpdateOrderValidation(ctx context.Context, id string, validation *models.ExpertValidation, status models.OrderStatus, completedAt *time.Time) error
	UpdateOrderContent(ctx context.Context, id string, content *models.ReadingContent) error
}

// IntentCreator registers a checkout intent with the payment provider.
type IntentCreator interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (string, error)
}

// EventPublisher streams order creation events, best-effort.
type EventPublisher interface {
	PublishOrderCreated(order *models.Order) error
}

// Per-level prices in minor units.
var levelPrices = map[models.ReadingLevel]int64{
	models.LevelSimple:     2700,
	models.LevelIntuitive:  5400,
	models.LevelAlchimique: 8100,
	models.LevelIntegrale:  12600,
}

const defaultCurrency = "eur"

type Service struct {
	DB            DBLayer
	Seq           ledger.Sequencer
	Intents       IntentCreator
	Events        EventPublisher
	Log           *logger.Logger
	SanctuaryBase string
}

func NewService(db DBLayer, seq ledger.Sequencer, intents IntentCreator, events EventPublisher, log *logger.Logger, sanctuaryBase string) *Service {
	return &Service{DB: db, Seq: seq, Intents: intents, Events: events, Log: log, SanctuaryBase: sanctuaryBase}
}

type CheckoutRequest struct {
	Level         models.ReadingLevel `json:"level"`
	CustomerEmail string              `json:"customer_email,omitempty"`
	Metadata      map[string]string   `json:"metadata,omitempty"`
}

// CreateCheckoutIntent registers an intent with the payment provider and
// writes the provisional order that the webhook ingestor will transition.
func (s *Service) CreateCheckoutIntent(ctx context.Context, req CheckoutRequest) (*models.ProvisionalOrder, error) {
	if !req.Level.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLevel, req.Level)
	}
	amount := levelPrices[req.Level]
	productID := productIDForLevel(req.Level)

	metadata := map[string]string{"product_id": productID}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	ref, err := s.Intents.CreateIntent(ctx, amount, defaultCurrency, metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout intent: %w", err)
	}

	provisional := &models.ProvisionalOrder{
		ID:            uuid.NewString(),
		PaymentRef:    ref,
		ProductID:     productID,
		CustomerEmail: req.CustomerEmail,
		AmountMinor:   amount,
		Currency:      defaultCurrency,
		Status:        models.ProvisionalPending,
		Metadata:      req.Metadata,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.DB.CreateProvisional(ctx, provisional); err != nil {
		return nil, err
	}

	s.Log.LogOrder("CHECKOUT", ref, fmt.Sprintf("Provisional order created for %s", productID))
	return provisional, nil
}

type SubmissionRequest struct {
	PaymentRef    string            `json:"payment_reference_id"`
	UserID        string            `json:"user_id"`
	CustomerEmail string            `json:"customer_email,omitempty"`
	FormData      map[string]string `json:"form_data,omitempty"`
	FileRefs      []string          `json:"file_refs,omitempty"`
}

// SubmitOrder creates the full order from the customer's post-payment
// submission. The webhook never creates full orders; this path does, and it
// starts the order at paid when the provisional has already completed.
func (s *Service) SubmitOrder(ctx context.Context, req SubmissionRequest) (*models.Order, error) {
	if req.PaymentRef == "" || req.UserID == "" {
		return nil, fmt.Errorf("%w: payment_reference_id and user_id are required", ledger.ErrValidation)
	}

	provisional, err := s.DB.ProvisionalByPaymentRef(ctx, req.PaymentRef)
	if err != nil {
		return nil, fmt.Errorf("no checkout found for reference %s: %w", req.PaymentRef, err)
	}

	level, ok := levelForProductID(provisional.ProductID)
	if !ok {
		return nil, fmt.Errorf("%w: provisional product %q", ErrInvalidLevel, provisional.ProductID)
	}

	status := models.OrderPending
	if provisional.Status == models.ProvisionalCompleted {
		status = models.OrderPaid
	}

	email := req.CustomerEmail
	if email == "" {
		email = provisional.CustomerEmail
	}

	order := &models.Order{
		ID:            uuid.NewString(),
		PaymentRef:    provisional.PaymentRef,
		UserID:        req.UserID,
		CustomerEmail: email,
		Level:         level,
		AmountMinor:   provisional.AmountMinor,
		Currency:      provisional.Currency,
		Status:        status,
		FormData:      req.FormData,
		FileRefs:      req.FileRefs,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.DB.CreateOrder(ctx, order, s.Seq); err != nil {
		return nil, err
	}

	if s.Events != nil {
		if err := s.Events.PublishOrderCreated(order); err != nil {
			s.Log.Warn("KAFKA", fmt.Sprintf("Failed to publish order created for %s: %v", order.OrderNumber, err))
		}
	}

	s.Log.LogOrder("SUBMIT", order.ID, fmt.Sprintf("Full order %s created with status %s", order.OrderNumber, status))
	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return s.DB.OrderByID(ctx, id)
}

// AttachReview records the expert's working notes and moves the order into
// the validation queue.
func (s *Service) AttachReview(ctx context.Context, orderID, expertID, notes string) (*models.Order, error) {
	order, err := s.DB.OrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderPaid && order.Status != models.OrderProcessing {
		return nil, fmt.Errorf("%w: status %s", ErrInvalidState, order.Status)
	}

	review := &models.ExpertReview{
		ExpertID:   expertID,
		Notes:      notes,
		ReviewedAt: time.Now().UTC(),
	}
	if err := s.DB.UpdateOrderReview(ctx, orderID, review, models.OrderAwaitingValidation); err != nil {
		return nil, err
	}

	order.Review = review
	order.Status = models.OrderAwaitingValidation
	s.Log.LogOrder("REVIEW", orderID, fmt.Sprintf("Reviewed by %s", expertID))
	return order, nil
}

// Validate is the separate approval step. Approval completes the order and
// attaches the sanctuary delivery payload; rejection sends it back to the
// expert queue.
func (s *Service) Validate(ctx context.Context, orderID, validatorID string, approved bool, comment string) (*models.Order, error) {
	order, err := s.DB.OrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderAwaitingValidation {
		return nil, fmt.Errorf("%w: status %s", ErrInvalidState, order.Status)
	}

	now := time.Now().UTC()
	validation := &models.ExpertValidation{
		ValidatorID: validatorID,
		Approved:    approved,
		Comment:     comment,
		ValidatedAt: now,
	}

	if !approved {
		if err := s.DB.UpdateOrderValidation(ctx, orderID, validation, models.OrderProcessing, nil); err != nil {
			return nil, err
		}
		order.Validation = validation
		order.Status = models.OrderProcessing
		s.Log.LogOrder("VALIDATE", orderID, fmt.Sprintf("Rejected by %s", validatorID))
		return order, nil
	}

	content := order.Content
	if content == nil {
		content = &models.ReadingContent{}
	}
	if content.SanctuaryURL == "" {
		content.SanctuaryURL = fmt.Sprintf("%s/sanctuary/%s", s.SanctuaryBase, order.ID)
	}
	if qr, err := delivery.SanctuaryQR(content.SanctuaryURL); err == nil {
		content.AccessQR = qr
	} else {
		s.Log.Warn("DELIVERY", fmt.Sprintf("Failed to render access QR for %s: %v", orderID, err))
	}
	if err := s.DB.UpdateOrderContent(ctx, orderID, content); err != nil {
		return nil, err
	}

	if err := s.DB.UpdateOrderValidation(ctx, orderID, validation, models.OrderCompleted, &now); err != nil {
		return nil, err
	}

	order.Content = content
	order.Validation = validation
	order.Status = models.OrderCompleted
	order.CompletedAt = now
	s.Log.LogOrder("VALIDATE", orderID, fmt.Sprintf("Approved by %s, order completed", validatorID))
	return order, nil
}

func productIDForLevel(l models.ReadingLevel) string {
	return fmt.Sprintf("level-%d", l)
}

func levelForProductID(productID string) (models.ReadingLevel, bool) {
	var n int
	if _, err := fmt.Sscanf(productID, "level-%d", &n); err != nil {
		return 0, false
	}
	level := models.ReadingLevel(n)
	return level, level.Valid()
}
