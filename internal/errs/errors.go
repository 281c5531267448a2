package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across services. Callers match them with
// errors.Is; transport layers map them onto status codes.
var (
	ErrNotFound           = errors.New("record not found")
	ErrSelfParent         = errors.New("category cannot be its own parent")
	ErrCircularReference  = errors.New("cannot set a descendant category as parent")
	ErrHasProducts        = errors.New("category has associated products")
	ErrHasChildren        = errors.New("category has subcategories")
	ErrSelfDelete         = errors.New("users cannot delete their own account")
	ErrUniquenessConflict = errors.New("value already in use")
)

// ValidationError reports malformed or missing input, caught before
// any write happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Validationf builds a ValidationError for a field.
func Validationf(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// InsufficientStockError aborts an order when a tracked product cannot
// cover the requested quantity.
type InsufficientStockError struct {
	ProductID int64
	Product   string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %q: requested %d, available %d",
		e.Product, e.Requested, e.Available)
}

// InvalidStateTransitionError reports an order status change outside
// the allowed transition table.
type InvalidStateTransitionError struct {
	From string
	To   string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid order status transition %s -> %s", e.From, e.To)
}
