package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrServiceRequired     = sterrors.New("protoevents: event service is required")
	ErrHandlerRequired     = sterrors.New("protoevents: handler is required")
	ErrEventNameRequired   = sterrors.New("protoevents: event name is required")
	ErrListenerNameMissing = sterrors.New("protoevents: listener name is required")
	ErrTransportRequired   = sterrors.New("protoevents: transport is required")
	ErrMessageRequired     = sterrors.New("protoevents: message is required")
	ErrPublisherRequired   = sterrors.New("protoevents: publisher is required")
	ErrRoutingKeyRequired  = sterrors.New("protoevents: routing key is required")
	ErrConfigRequired      = sterrors.New("protoevents: configuration is required")
	ErrLoggerRequired      = sterrors.New("protoevents: logger is required")
	ErrUnknownCodec        = sterrors.New("protoevents: unknown codec")
	ErrEnvelopeDataMissing = sterrors.New("protoevents: envelope data is required")
)

// Kind classifies failures surfaced by the dispatcher.
type Kind string

const (
	KindNone            Kind = "none"
	KindInvalidMessage  Kind = "invalid_message"
	KindHandlerContract Kind = "handler_contract"
	KindTransport       Kind = "transport"
	KindHandler         Kind = "handler"
)

// ContractKind names the handler contract that could not be satisfied.
type ContractKind string

const (
	MissingHandleMethod ContractKind = "missing_handle_method"
	MissingClient       ContractKind = "missing_client"
	EmptyDelivery       ContractKind = "empty_delivery"
)

// InvalidMessageError reports a payload that does not decode as the expected type.
type InvalidMessageError struct {
	ExpectedType string
	Cause        error
}

func (e *InvalidMessageError) Error() string {
	return fmt.Sprintf("the message is not a valid %s message", e.ExpectedType)
}

func (e *InvalidMessageError) Unwrap() error {
	return e.Cause
}

// HandlerContractError reports a handler whose declared contract cannot be
// satisfied, either by its own shape or by the delivered envelope.
type HandlerContractError struct {
	Handler string
	Kind    ContractKind
	Detail  string
}

func (e *HandlerContractError) Error() string {
	switch e.Kind {
	case MissingHandleMethod:
		msg := e.Handler + " must have a Handle method with a single parameter implementing proto.Message"
		if e.Detail != "" {
			msg += ": " + e.Detail
		}
		return msg
	case MissingClient:
		return e.Handler + " requires a client identifier but the envelope carries none"
	case EmptyDelivery:
		return e.Handler + " received an empty delivery batch"
	default:
		return fmt.Sprintf("%s: handler contract %q not satisfied: %s", e.Handler, e.Kind, e.Detail)
	}
}

// NewMissingHandleMethod builds the contract error raised by type resolution.
func NewMissingHandleMethod(handler, detail string) *HandlerContractError {
	return &HandlerContractError{Handler: handler, Kind: MissingHandleMethod, Detail: detail}
}

// ConfigValidationError wraps the aggregated configuration validation failures.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "protoevents: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError returns nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}

// IsInvalidMessage reports whether err carries an InvalidMessageError.
func IsInvalidMessage(err error) bool {
	var target *InvalidMessageError
	return sterrors.As(err, &target)
}

// IsHandlerContract reports whether err carries a HandlerContractError.
func IsHandlerContract(err error) bool {
	var target *HandlerContractError
	return sterrors.As(err, &target)
}

// KindOf classifies err. Errors that are neither decode nor contract failures
// fall back to the supplied kind, which depends on where they were raised.
func KindOf(err error, fallback Kind) Kind {
	switch {
	case err == nil:
		return KindNone
	case IsInvalidMessage(err):
		return KindInvalidMessage
	case IsHandlerContract(err):
		return KindHandlerContract
	default:
		return fallback
	}
}
