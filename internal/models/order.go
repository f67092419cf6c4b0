package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderPending            OrderStatus = "pending"
	OrderPaid               OrderStatus = "paid"
	OrderProcessing         OrderStatus = "processing"
	OrderAwaitingValidation OrderStatus = "awaiting_validation"
	OrderCompleted          OrderStatus = "completed"
	OrderFailed             OrderStatus = "failed"
	OrderRefunded           OrderStatus = "refunded"
)

// ReadingLevel is the closed 1..4 product tier for a reading.
type ReadingLevel int

const (
	LevelSimple     ReadingLevel = 1
	LevelIntuitive  ReadingLevel = 2
	LevelAlchimique ReadingLevel = 3
	LevelIntegrale  ReadingLevel = 4
)

func (l ReadingLevel) Name() string {
	switch l {
	case LevelSimple:
		return "Simple"
	case LevelIntuitive:
		return "Intuitive"
	case LevelAlchimique:
		return "Alchimique"
	case LevelIntegrale:
		return "Intégrale"
	default:
		return "Unknown"
	}
}

func (l ReadingLevel) Valid() bool {
	return l >= LevelSimple && l <= LevelIntegrale
}

// ReadingContent is the generated delivery payload attached once the
// reading has been produced.
type ReadingContent struct {
	Text         string `json:"text,omitempty"`
	AudioURL     string `json:"audio_url,omitempty"`
	PDFURL       string `json:"pdf_url,omitempty"`
	MandalaURL   string `json:"mandala_url,omitempty"`
	SanctuaryURL string `json:"sanctuary_url,omitempty"`
	AccessQR     []byte `json:"access_qr,omitempty"`
}

// ExpertReview is the back-office expert's working notes on an order.
type ExpertReview struct {
	ExpertID   string    `json:"expert_id"`
	Notes      string    `json:"notes,omitempty"`
	ReviewedAt time.Time `json:"reviewed_at"`
}

// ExpertValidation is the separate approval step that releases the order.
type ExpertValidation struct {
	ValidatorID string    `json:"validator_id"`
	Approved    bool      `json:"approved"`
	Comment     string    `json:"comment,omitempty"`
	ValidatedAt time.Time `json:"validated_at"`
}

// Order is the full record created by the customer's post-payment
// submission. OrderNumber is immutable once assigned and unique across all
// days; PaymentRef shares the provisional order's namespace and makes the
// full order authoritative for every read once both records exist.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID            string            `bun:"id,pk" json:"id"`
	OrderNumber   string            `bun:"order_number,notnull,unique" json:"order_number"`
	PaymentRef    string            `bun:"payment_ref,notnull" json:"payment_reference_id"`
	UserID        string            `bun:"user_id,notnull" json:"user_id"`
	CustomerEmail string            `bun:"customer_email,nullzero" json:"customer_email,omitempty"`
	Level         ReadingLevel      `bun:"level,notnull" json:"level"`
	AmountMinor   int64             `bun:"amount_minor,notnull" json:"amount_minor_units"`
	Currency      string            `bun:"currency,notnull" json:"currency"`
	Status        OrderStatus       `bun:"status,notnull" json:"status"`
	FormData      map[string]string `bun:"form_data,type:jsonb" json:"form_data,omitempty"`
	FileRefs      []string          `bun:"file_refs,type:jsonb" json:"file_refs,omitempty"`
	Content       *ReadingContent   `bun:"content,type:jsonb" json:"content,omitempty"`
	Review        *ExpertReview     `bun:"review,type:jsonb" json:"review,omitempty"`
	Validation    *ExpertValidation `bun:"validation,type:jsonb" json:"validation,omitempty"`
	CreatedAt     time.Time         `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time         `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
	CompletedAt   time.Time         `bun:"completed_at,nullzero" json:"completed_at,omitempty"`
}
