package payment

import (
	"math/rand"

	"github.com/fjod/go_storefront/internal/api"
)

// Card tokens with a fixed outcome under TokenStatus.
const (
	TokenDecline           = "tok_decline"
	TokenInsufficientFunds = "tok_insufficient_funds"
	TokenExpiredCard       = "tok_expired_card"
	TokenProcessingError   = "tok_processing_error"
)

type Refusal int

const (
	RefusalNone Refusal = iota
	RefusalCardDeclined
	RefusalInsufficientFunds
	RefusalExpiredCard
	RefusalProcessingError
)

func (r Refusal) Message() string {
	switch r {
	case RefusalCardDeclined:
		return "Your card was declined."
	case RefusalInsufficientFunds:
		return "Your card has insufficient funds."
	case RefusalExpiredCard:
		return "Your card has expired."
	case RefusalProcessingError:
		return "An error occurred while processing your card. Try again in a little bit."
	default:
		return ""
	}
}

// StatusSource decides how a confirmation attempt ends.
type StatusSource interface {
	GetStatus(cardToken string) (string, Refusal)
}

// TokenStatus fails the well-known test tokens and accepts everything else.
type TokenStatus struct{}

func (TokenStatus) GetStatus(cardToken string) (string, Refusal) {
	switch cardToken {
	case TokenDecline:
		return api.ChargeFailed, RefusalCardDeclined
	case TokenInsufficientFunds:
		return api.ChargeFailed, RefusalInsufficientFunds
	case TokenExpiredCard:
		return api.ChargeFailed, RefusalExpiredCard
	case TokenProcessingError:
		return api.ChargeFailed, RefusalProcessingError
	default:
		return api.ChargeSucceeded, RefusalNone
	}
}

// RandomStatus succeeds 95% of the time regardless of the token.
type RandomStatus struct{}

func (RandomStatus) GetStatus(string) (string, Refusal) {
	return calcStatus(rand.Intn(100))
}

func calcStatus(n int) (string, Refusal) {
	if n < 95 {
		return api.ChargeSucceeded, RefusalNone
	}
	switch n - 95 {
	case 0, 1:
		return api.ChargeFailed, RefusalCardDeclined
	case 2:
		return api.ChargeFailed, RefusalInsufficientFunds
	case 3:
		return api.ChargeFailed, RefusalExpiredCard
	default:
		return api.ChargeFailed, RefusalProcessingError
	}
}

// NewStatusSource maps the PAYMENT_MODE setting to a StatusSource.
func NewStatusSource(mode string) StatusSource {
	if mode == "random" {
		return RandomStatus{}
	}
	return TokenStatus{}
}
