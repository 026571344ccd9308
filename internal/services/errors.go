package services

import (
	"errors"
	"fmt"

	"storefront-backend/internal/repository"
)

var (
	ErrNotFound           = repository.ErrNotFound
	ErrInsufficientStock  = repository.ErrInsufficientStock
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrValidation         = errors.New("validation failed")
	ErrProductUnavailable = errors.New("product is not available")
	ErrShopUnavailable    = errors.New("shop is not accepting orders")
	ErrUnrecognizedSignal = errors.New("unrecognized payment signal")
	ErrEmptyOrder         = errors.New("no items selected")
	ErrPaymentLink        = errors.New("payment link could not be created")
	ErrLinkInProgress     = errors.New("payment link creation already in progress")
)

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// conflictAsTransition reports a lost compare-and-set as an invalid transition.
func conflictAsTransition(err error) error {
	if errors.Is(err, repository.ErrConflict) {
		return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}
	return err
}
