package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Customer carries the aggregate counters the webhook ingestor bumps as a
// best-effort secondary write after a successful payment.
type Customer struct {
	bun.BaseModel `bun:"table:customers"`

	ID                 string    `bun:"id,pk" json:"id"`
	Email              string    `bun:"email,notnull,unique" json:"email"`
	OrderCount         int       `bun:"order_count,notnull,default:0" json:"order_count"`
	LastOrderAt        time.Time `bun:"last_order_at,nullzero" json:"last_order_at,omitempty"`
	SubscriptionActive bool      `bun:"subscription_active,notnull,default:false" json:"subscription_active"`
	CreatedAt          time.Time `bun:"created_at,notnull" json:"created_at"`
}
