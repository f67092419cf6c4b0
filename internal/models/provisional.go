package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ProvisionalStatus string

const (
	ProvisionalPending    ProvisionalStatus = "pending"
	ProvisionalProcessing ProvisionalStatus = "processing"
	ProvisionalCompleted  ProvisionalStatus = "completed"
	ProvisionalFailed     ProvisionalStatus = "failed"
	ProvisionalCancelled  ProvisionalStatus = "cancelled"
)

// ProvisionalOrder is the lightweight record written at checkout-intent time,
// before any customer profile data exists. It is keyed to the eventual full
// order through the provider-issued payment reference and is never deleted:
// once a full order shares its payment reference the provisional record is
// retained for audit and fallback reads only.
type ProvisionalOrder struct {
	bun.BaseModel `bun:"table:provisional_orders"`

	ID            string            `bun:"id,pk" json:"id"`
	PaymentRef    string            `bun:"payment_ref,notnull,unique" json:"payment_reference_id"`
	ProductID     string            `bun:"product_id,notnull" json:"product_id"`
	CustomerEmail string            `bun:"customer_email,nullzero" json:"customer_email,omitempty"`
	AmountMinor   int64             `bun:"amount_minor,notnull" json:"amount_minor_units"`
	Currency      string            `bun:"currency,notnull" json:"currency"`
	Status        ProvisionalStatus `bun:"status,notnull" json:"status"`
	Metadata      map[string]string `bun:"metadata,type:jsonb" json:"metadata,omitempty"`
	CreatedAt     time.Time         `bun:"created_at,notnull" json:"created_at"`
	CompletedAt   time.Time         `bun:"completed_at,nullzero" json:"completed_at,omitempty"`
}
