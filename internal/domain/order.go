package domain

import "time"

// Address is the billing or shipping block sent with the checkout mutation.
type Address struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Address1  string `json:"address1"`
	Address2  string `json:"address2"`
	City      string `json:"city"`
	Country   string `json:"country"`
	State     string `json:"state"`
	Postcode  string `json:"postcode"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Company   string `json:"company"`
}

// CheckoutInput is the submitted order request. It is never reused across submissions.
type CheckoutInput struct {
	ClientMutationID       string  `json:"clientMutationId"`
	Billing                Address `json:"billing"`
	Shipping               Address `json:"shipping"`
	ShipToDifferentAddress bool    `json:"shipToDifferentAddress"`
	PaymentMethod          string  `json:"paymentMethod"`
	IsPaid                 bool    `json:"isPaid"`
	TransactionID          string  `json:"transactionId,omitempty"`
}

type OrderAddress struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Company   string `json:"company"`
	Address1  string `json:"address1"`
	Address2  string `json:"address2"`
	City      string `json:"city"`
	State     string `json:"state"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type OrderImage struct {
	SourceURL string `json:"sourceUrl"`
	AltText   string `json:"altText"`
}

type OrderProduct struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Image *OrderImage `json:"image"`
}

type OrderProductEdge struct {
	Node *OrderProduct `json:"node"`
}

type OrderLineItem struct {
	ID        string            `json:"id"`
	ProductID int64             `json:"productId"`
	Quantity  int               `json:"quantity"`
	Subtotal  string            `json:"subtotal"`
	Total     string            `json:"total"`
	Product   *OrderProductEdge `json:"product"`
	Variation *OrderProductEdge `json:"variation"`
}

type OrderLineItems struct {
	Nodes []OrderLineItem `json:"nodes"`
}

// Order is the receipt exactly as the gateway returned it at creation time.
type Order struct {
	ID                 string         `json:"id"`
	DatabaseID         int64          `json:"databaseId"`
	OrderNumber        string         `json:"orderNumber"`
	OrderKey           string         `json:"orderKey"`
	Status             string         `json:"status"`
	Date               string         `json:"date"`
	Total              string         `json:"total"`
	Subtotal           string         `json:"subtotal"`
	TotalTax           string         `json:"totalTax"`
	ShippingTotal      string         `json:"shippingTotal"`
	PaymentMethod      string         `json:"paymentMethod"`
	PaymentMethodTitle string         `json:"paymentMethodTitle"`
	Currency           string         `json:"currency"`
	Billing            *OrderAddress  `json:"billing"`
	Shipping           *OrderAddress  `json:"shipping"`
	LineItems          OrderLineItems `json:"lineItems"`
}

// Customer is the signed-in account as reported by the gateway.
type Customer struct {
	ID         string `json:"id"`
	DatabaseID int64  `json:"databaseId"`
	Email      string `json:"email"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Username   string `json:"username"`
}

// CheckoutAttempt is one row of the submission ledger, keyed by idempotency token.
type CheckoutAttempt struct {
	ClientMutationID string
	SessionID        string
	Status           CheckoutStatus
	PaymentMethod    string
	OrderID          *int64
	ErrorCode        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type CheckoutEventType string

const (
	EventOrderPlaced    CheckoutEventType = "order_placed"
	EventReceiptMissing CheckoutEventType = "order_receipt_missing"
	EventCheckoutFailed CheckoutEventType = "checkout_failed"
)

// CheckoutEvent is published after every settled submission.
type CheckoutEvent struct {
	Type             CheckoutEventType `json:"type"`
	SessionID        string            `json:"session_id"`
	ClientMutationID string            `json:"client_mutation_id"`
	OrderID          int64             `json:"order_id,omitempty"`
	OrderNumber      string            `json:"order_number,omitempty"`
	OrderStatus      string            `json:"order_status,omitempty"`
	Total            string            `json:"total,omitempty"`
	ErrorCode        string            `json:"error_code,omitempty"`
	OccurredAt       time.Time         `json:"occurred_at"`
}
