package models

// OrderSource tags which ledger record produced a unified view.
type OrderSource string

const (
	SourceFullOrder        OrderSource = "FullOrder"
	SourceProvisionalOrder OrderSource = "ProvisionalOrder"
)

// UnifiedOrder is the single logical order view returned to clients
// regardless of which ledger record currently exists. When synthesized from
// a provisional order the reference number carries a TEMP- prefix and the
// provisional status vocabulary is mapped onto OrderStatus.
type UnifiedOrder struct {
	ID              string      `json:"id"`
	ReferenceNumber string      `json:"referenceNumber"`
	PaymentRef      string      `json:"paymentReferenceId"`
	Status          OrderStatus `json:"status"`
	AmountMinor     int64       `json:"amountMinorUnits"`
	Currency        string      `json:"currency"`
	CustomerEmail   string      `json:"customerEmail,omitempty"`
	ProductID       string      `json:"productId,omitempty"`
	AccessGranted   bool        `json:"accessGranted"`
	SanctuaryURL    string      `json:"sanctuaryUrl,omitempty"`
	Source          OrderSource `json:"source"`
	Message         string      `json:"message,omitempty"`
}

// PaymentEvent is the lifecycle event streamed to Kafka when the webhook
// ingestor applies a transition.
type PaymentEvent struct {
	Type       string `json:"type"`
	PaymentRef string `json:"payment_reference_id"`
	OrderID    string `json:"order_id,omitempty"`
	Status     string `json:"status"`
	Timestamp  int64  `json:"timestamp"`
}
