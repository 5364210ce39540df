package checkout

import "github.com/fjod/go_storefront/internal/apperr"

var (
	ErrEmptyCart          = apperr.New(apperr.ErrValidation, "your cart is empty")
	ErrUnauthenticated    = apperr.New(apperr.ErrUnauthorized, "please sign in to check out")
	ErrNoShippingAddress  = apperr.New(apperr.ErrValidation, "no shipping address")
	ErrNoAddressSelected  = apperr.New(apperr.ErrValidation, "please select a shipping address")
	ErrNoPaymentMethod    = apperr.New(apperr.ErrValidation, "please choose a payment method")
	ErrMissingCard        = apperr.New(apperr.ErrValidation, "card details are required")
	ErrOutOfStock         = apperr.New(apperr.ErrConflict, "some items in your cart are out of stock")
	ErrQuantityAdjusted   = apperr.New(apperr.ErrConflict, "some quantities were adjusted to available stock, please review your cart")
	ErrPaymentFailed      = apperr.New(apperr.ErrPayment, "payment failed")
	ErrCheckoutInProgress = apperr.New(apperr.ErrConflict, "checkout is already in progress")
)
