// Package errs defines the error-kind taxonomy shared by every package in
// this module (spec §7). Errors are distinguished by kind, not by Go type
// hierarchy: callers match with errors.As against *errs.Error and switch on
// its Kind field.
package errs

import "fmt"

// Kind identifies one of the fixed error categories the client can surface.
type Kind string

const (
	KindInvalidInterval  Kind = "invalid_interval"
	KindInvalidSymbol    Kind = "invalid_symbol"
	KindTransportError   Kind = "transport_error"
	KindHandshakeFailed  Kind = "handshake_failed"
	KindProtocolError    Kind = "protocol_error"
	KindMalformedFrame   Kind = "malformed_frame"
	KindJSONParseError   Kind = "json_parse_error"
	KindTimeout          Kind = "timeout"
	KindNoData           Kind = "no_data"
	KindConnectionClosed Kind = "connection_closed"
	KindInvalidConfig    Kind = "invalid_config"
)

// Error is the concrete error type every package wraps underlying causes
// in. Two Errors are comparable by Kind via errors.Is when constructed with
// the same sentinel (see Is).
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, errs.Sentinel(errs.KindTimeout)) match any *Error
// of that kind by treating *Error.Kind equality as the match.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// Sentinel returns an unadorned *Error of kind k, suitable for use with
// errors.Is(err, errs.Sentinel(errs.KindTimeout)).
func Sentinel(k Kind) *Error { return &Error{Kind: k} }

// ProtocolError carries the server-reported code/message from a
// protocol_error envelope.
type ProtocolError struct {
	Code    string
	Message string
}

func (p *ProtocolError) Error() string {
	return fmt.Sprintf("protocol_error: %s: %s", p.Code, p.Message)
}
