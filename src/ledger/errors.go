package ledger

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidRequest         = errors.New("invalid request")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrUnknownAccount         = errors.New("unknown account")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrDanglingReference      = errors.New("dangling reference")
	ErrConcurrentModification = errors.New("concurrent modification")
)

// InsufficientFundsError reports how far short the sender is.
type InsufficientFundsError struct {
	Available decimal.Decimal
	Required  decimal.Decimal
	Shortfall decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: need %s, available %s, short by %s",
		e.Required.String(), e.Available.String(), e.Shortfall.String())
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// ErrorKind maps an admission error onto its machine readable code.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrUnknownAccount):
		return "unknown_account"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrDanglingReference):
		return "dangling_reference"
	case errors.Is(err, ErrConcurrentModification):
		return "concurrent_modification"
	default:
		return "internal"
	}
}
