package orders

import "github.com/fjod/go_storefront/internal/apperr"

var (
	ErrOrderNotFound     = apperr.New(apperr.ErrNotFound, "order not found")
	ErrInsufficientStock = apperr.New(apperr.ErrConflict, "insufficient stock")
	ErrUnknownProduct    = apperr.New(apperr.ErrValidation, "unknown product")
	ErrSizeRequired      = apperr.New(apperr.ErrValidation, "size is required")
	ErrTotalMismatch     = apperr.New(apperr.ErrConflict, "order total does not match current prices")
	ErrInvalidTransition = apperr.New(apperr.ErrConflict, "invalid status transition")
	ErrNotCancellable    = apperr.New(apperr.ErrConflict, "only pending orders can be cancelled")
	ErrChargeRequired    = apperr.New(apperr.ErrPayment, "card orders require a succeeded charge")
	ErrChargeAlreadyUsed = apperr.New(apperr.ErrConflict, "charge has already paid for another order")
)
