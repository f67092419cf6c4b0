package payments

import (
	"context"
	"errors"
	"fmt"

	"ms-lectures/internal/logger"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

var (
	ErrAPIError         = errors.New("stripe API error")
	ErrClientInitFailed = errors.New("failed to initialize Stripe client")
)

// Client wraps the Stripe SDK behind the two operations this service
// needs: registering a checkout intent and a connectivity ping. Webhook
// signature verification lives with the ingestor, which owns the raw
// payload bytes.
type Client struct {
	api *client.API
	log *logger.Logger
}

func NewClient(secretKey string, log *logger.Logger) (*Client, error) {
	if secretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY not set")
		return nil, ErrClientInitFailed
	}

	sc := client.New(secretKey, nil)
	log.Info("STRIPE", "Stripe client initialized")
	return &Client{api: sc, log: log}, nil
}

// CreateIntent registers a payment intent with the provider and returns
// its id, which becomes the payment reference correlating the provisional
// and full order records.
func (c *Client) CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountMinor),
		Currency: stripe.String(currency),
		Metadata: metadata,
	}
	params.Context = ctx

	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		c.log.Error("STRIPE", fmt.Sprintf("Failed to create payment intent: %v", err))
		return "", fmt.Errorf("%w: %v", ErrAPIError, err)
	}

	c.log.Info("STRIPE", fmt.Sprintf("Payment intent created: %s (%d %s)", pi.ID, amountMinor, currency))
	return pi.ID, nil
}

// Ping retrieves the account balance as a cheap connectivity check for the
// readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	params := &stripe.BalanceParams{}
	params.Context = ctx
	if _, err := c.api.Balance.Get(params); err != nil {
		return fmt.Errorf("%w: %v", ErrAPIError, err)
	}
	return nil
}
