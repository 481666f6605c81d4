package domain

import "fmt"

// ValidationError reports bad caller input (amount, phone, payment method).
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func Validation(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// GatewayError reports a failed payment-gateway call or a gateway response
// with no usable result.
type GatewayError struct {
	Msg string
	Err error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *GatewayError) Unwrap() error { return e.Err }

// AccountingError reports a failure status or an incomplete success from
// the accounting API. Msg carries the remote-supplied message when present.
type AccountingError struct {
	Msg string
}

func (e *AccountingError) Error() string { return e.Msg }

// StorageError reports a scratch-store read or write failure. Callers log
// it and carry on; it is never surfaced to HTTP clients.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
