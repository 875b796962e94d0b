package models

// Subscription records which plan a chat user bought
type Subscription struct {
	Tariff       string `json:"tariff"`
	TrafficLimit int64  `json:"traffic_limit"`
}

// RequestKind distinguishes purchase requests from top-up requests
type RequestKind string

const (
	// RequestPurchase is a new key or renewal awaiting payment confirmation
	RequestPurchase RequestKind = "purchase"
	// RequestTopUp is a traffic package awaiting payment confirmation
	RequestTopUp RequestKind = "topup"
)

// PaymentRequest is a pending manual payment confirmation
type PaymentRequest struct {
	ID        string
	Kind      RequestKind
	UserID    int64
	Email     string
	Code      string // tariff or addon code
	CreatedAt int64
}
