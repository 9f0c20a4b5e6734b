package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Package apierr carries structured, serializable errors that can cross a
// process boundary (job reports, published events, CLI output).

// Kind classifies an Error.
type Kind string

const (
	KindNotFound       Kind = "certless/not-found"
	KindServerError    Kind = "certless/server-error"
	KindRequestFailed  Kind = "certless/request-failed"
	KindDecodeError    Kind = "certless/decode-error"
	KindInvalidRequest Kind = "certless/invalid-request"
	KindTransportError Kind = "certless/transport-error"
)

// Error is an immutable classified error. Its JSON form uses the keys kind,
// msg, details and (only when set) issue_code.
type Error struct {
	kind      Kind
	msg       string
	details   map[string]any
	issueCode string
	cause     error
}

// New builds an Error. A nil details map is stored as an empty one.
func New(msg string, kind Kind, details map[string]any) *Error {
	return &Error{
		kind:    kind,
		msg:     msg,
		details: copyDetails(details),
	}
}

// WithIssueCode returns a copy of e carrying the given issue code.
func (e *Error) WithIssueCode(code string) *Error {
	out := *e
	out.details = copyDetails(e.details)
	out.issueCode = code
	return &out
}

// WithCause returns a copy of e that unwraps to cause.
func (e *Error) WithCause(cause error) *Error {
	out := *e
	out.details = copyDetails(e.details)
	out.cause = cause
	return &out
}

func (e *Error) Error() string { return e.msg }
func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Kind() Kind        { return e.kind }
func (e *Error) Msg() string       { return e.msg }
func (e *Error) IssueCode() string { return e.issueCode }

// Details returns a copy of the error details.
func (e *Error) Details() map[string]any { return copyDetails(e.details) }

// ToMap renders the error with its wire keys.
func (e *Error) ToMap() map[string]any {
	h := map[string]any{
		"kind":    string(e.kind),
		"msg":     e.msg,
		"details": copyDetails(e.details),
	}
	if e.issueCode != "" {
		h["issue_code"] = e.issueCode
	}
	return h
}

type wireError struct {
	Kind      Kind           `json:"kind"`
	Msg       string         `json:"msg"`
	Details   map[string]any `json:"details"`
	IssueCode string         `json:"issue_code,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireError{
		Kind:      e.kind,
		Msg:       e.msg,
		Details:   copyDetails(e.details),
		IssueCode: e.issueCode,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Error) UnmarshalJSON(data []byte) error {
	var w wireError
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode error document: %w", err)
	}
	if w.Kind == "" {
		return errors.New("decode error document: kind is required")
	}
	*e = Error{
		kind:      w.Kind,
		msg:       w.Msg,
		details:   copyDetails(w.Details),
		issueCode: w.IssueCode,
	}
	return nil
}

// Is matches another *Error of the same kind, so errors.Is(err, &Error{kind})
// style checks work through wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.kind == e.kind && (t.msg == "" || t.msg == e.msg)
}

// FromError converts any error into an *Error for reporting. Existing *Error
// values found in the chain are returned as-is; anything else becomes a
// transport error wrapping the original.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return New(err.Error(), KindTransportError, nil).WithCause(err)
}

// KindOf reports the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.kind, true
	}
	return "", false
}

func copyDetails(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
