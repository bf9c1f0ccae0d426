// Package apperr defines the error kinds shared by the checkout workflow and its HTTP handlers.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind string

const (
	KindInvalidRequest Kind = "invalid_request"
	KindNotFound       Kind = "not_found"
	KindPersistence    Kind = "persistence_error"
	KindGateway        Kind = "gateway_error"
	KindInvalidState   Kind = "invalid_state"
	KindInternal       Kind = "internal"
)

// Error is a classified error. Msg is safe to show to callers; Err is not.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// InvalidRequest reports missing or malformed input.
func InvalidRequest(msg string) error {
	return &Error{Kind: KindInvalidRequest, Msg: msg}
}

// NotFound reports a missing course, product mapping, order or code.
func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Msg: msg}
}

// Persistence wraps a database failure for the named operation.
func Persistence(op string, err error) error {
	return &Error{Kind: KindPersistence, Msg: op, Err: err}
}

// Gateway wraps a payment processor failure. msg carries the processor message, if any.
func Gateway(msg string, err error) error {
	return &Error{Kind: KindGateway, Msg: msg, Err: err}
}

// InvalidState reports an undecodable or tampered callback state.
func InvalidState(err error) error {
	return &Error{Kind: KindInvalidState, Msg: "invalid state", Err: err}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the caller-safe message of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "internal error"
}
