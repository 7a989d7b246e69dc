package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every error the call session surfaces to its caller.
type ErrorKind string

const (
	KindAlreadyActive        ErrorKind = "already_active"
	KindInvalidState         ErrorKind = "invalid_state"
	KindInvalidRequest       ErrorKind = "invalid_request"
	KindCredential           ErrorKind = "credential_error"
	KindConnection           ErrorKind = "connection_error"
	KindDeviceUnavailable    ErrorKind = "device_unavailable"
	KindPublish              ErrorKind = "publish_error"
	KindProviderDisconnected ErrorKind = "provider_disconnected"
	KindCanceled             ErrorKind = "canceled"
)

// CallError carries a kind, the operation that failed and the cause.
type CallError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func NewCallError(kind ErrorKind, op string, err error) *CallError {
	return &CallError{Kind: kind, Op: op, Err: err}
}

func (e *CallError) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return string(e.Kind)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Op == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
}

func (e *CallError) Unwrap() error { return e.Err }

// Is matches the bare kind sentinels below, so errors.Is(err, ErrAlreadyActive)
// holds for any CallError of that kind.
func (e *CallError) Is(target error) bool {
	t, ok := target.(*CallError)
	if !ok || t.Op != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrAlreadyActive        = &CallError{Kind: KindAlreadyActive}
	ErrInvalidState         = &CallError{Kind: KindInvalidState}
	ErrInvalidRequest       = &CallError{Kind: KindInvalidRequest}
	ErrCredential           = &CallError{Kind: KindCredential}
	ErrConnection           = &CallError{Kind: KindConnection}
	ErrDeviceUnavailable    = &CallError{Kind: KindDeviceUnavailable}
	ErrPublish              = &CallError{Kind: KindPublish}
	ErrProviderDisconnected = &CallError{Kind: KindProviderDisconnected}
	ErrCanceled             = &CallError{Kind: KindCanceled}
)

// KindOf returns the kind of the first CallError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}
