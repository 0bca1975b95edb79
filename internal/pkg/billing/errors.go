package billing

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound signals that a referenced account, package, plan or
	// transaction does not exist.
	ErrNotFound = errors.New("billing: not found")

	// ErrPreconditionFailed signals a business-rule conflict such as an
	// already-active subscription or a missing valid mandate.
	ErrPreconditionFailed = errors.New("billing: precondition failed")

	// ErrForbidden signals that the caller does not own the referenced
	// transaction or account.
	ErrForbidden = errors.New("billing: forbidden")

	// ErrValidation signals malformed input rejected before any side effect.
	ErrValidation = errors.New("billing: invalid input")
)

// GatewayError wraps a failed or unconfirmed payment-provider call. It is
// surfaced as a server error so purchase callers can retry and the gateway
// redelivers webhooks.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("gateway: %s failed", e.Op)
	}
	return fmt.Sprintf("gateway: %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsGatewayError reports whether err is (or wraps) a GatewayError.
func IsGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}

// NewCorrelationID returns the identifier attached to unexpected errors so
// operators can match a client-visible failure to server logs.
func NewCorrelationID() string {
	return uuid.NewString()
}
