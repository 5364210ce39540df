// Package api holds the JSON contract between the storefront and the
// backoffice.
package api

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentCard = "card"
	PaymentCOD  = "cod"
)

const (
	ChargeSucceeded     = "succeeded"
	ChargeFailed        = "failed"
	ChargeRequiresInput = "requires_payment_method"
)

type LineItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Size      *string         `json:"size"`
}

type CreateIntentRequest struct {
	Amount          int64      `json:"amount"`
	Currency        string     `json:"currency"`
	Items           []LineItem `json:"items"`
	ShippingAddress string     `json:"shippingAddress"`
	IdempotencyKey  string     `json:"idempotencyKey,omitempty"`
}

type CreateIntentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret"`
}

type ConfirmPaymentRequest struct {
	ClientSecret string `json:"clientSecret"`
	CardToken    string `json:"cardToken"`
	BillingName  string `json:"billingName"`
	BillingEmail string `json:"billingEmail"`
}

type ConfirmPaymentResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type CreateOrderRequest struct {
	Items           []LineItem      `json:"items"`
	ShippingAddress string          `json:"shippingAddress"`
	PaymentMethod   string          `json:"paymentMethod"`
	Total           decimal.Decimal `json:"total"`
	ChargeID        string          `json:"chargeId,omitempty"`
	IdempotencyKey  string          `json:"idempotencyKey"`
}

type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	Status          string          `json:"status"`
	PaymentMethod   string          `json:"paymentMethod"`
	ChargeID        string          `json:"chargeId,omitempty"`
	ShippingAddress string          `json:"shippingAddress"`
	Total           decimal.Decimal `json:"total"`
	Currency        string          `json:"currency"`
	Items           []LineItem      `json:"items"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

type OrderPage struct {
	Orders   []Order `json:"orders"`
	Total    int     `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"pageSize"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type Profile struct {
	UserID   string `json:"userId"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

// UpdateProfileRequest is a partial update; nil fields are left unchanged.
type UpdateProfileRequest struct {
	FullName *string `json:"fullName,omitempty"`
	Email    *string `json:"email,omitempty"`
	Phone    *string `json:"phone,omitempty"`
}

// ProductSummary is the part of a catalog product the storefront needs to put
// it in a cart.
type ProductSummary struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Image string          `json:"image"`
}
