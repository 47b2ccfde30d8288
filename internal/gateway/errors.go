package gateway

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a delivery failure so the queue processor knows
// whether retrying can help
type ErrorKind int

const (
	// KindTransient covers timeouts, connection failures and provider 5xx;
	// the attempt may succeed if repeated
	KindTransient ErrorKind = iota
	// KindPermanent covers rejected recipients and provider 4xx; retrying
	// burns budget for nothing
	KindPermanent
	// KindConfig covers broken gateway configuration; no attempt was made
	KindConfig
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// DeliveryError is the error type every sender returns from Send
type DeliveryError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s delivery error: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s delivery error: %s", e.Kind, e.Message)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// NewTransientError creates a retryable delivery error
func NewTransientError(message string, err error) *DeliveryError {
	return &DeliveryError{Kind: KindTransient, Message: message, Err: err}
}

// NewPermanentError creates a non-retryable delivery error
func NewPermanentError(message string, err error) *DeliveryError {
	return &DeliveryError{Kind: KindPermanent, Message: message, Err: err}
}

// NewConfigError creates a gateway configuration error
func NewConfigError(message string, err error) *DeliveryError {
	return &DeliveryError{Kind: KindConfig, Message: message, Err: err}
}

// IsRetryable reports whether the processor should reschedule after err.
// Anything that is not a classified DeliveryError is treated as transient
// so unknown failures keep their retry budget.
func IsRetryable(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Kind == KindTransient
	}
	return true
}

// KindOf extracts the classification from err, defaulting to transient
func KindOf(err error) ErrorKind {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindTransient
}
