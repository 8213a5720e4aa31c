// Package failure defines the classified error taxonomy for publish calls.
//
// Every terminal failure of a publish call is a *Error carrying a Kind. Callers
// branch on the kind (errors.Is against the sentinels below, or KindOf) to pick
// user-facing messaging, e.g. offering "try again later" on a timeout.
package failure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies the stage-level category of a publish failure.
type Kind string

const (
	// KindAuth indicates the identity exchange was rejected or unreachable.
	KindAuth Kind = "auth"

	// KindUpload indicates the byte transfer was rejected or the upload
	// response carried neither a blob nor a job handle.
	KindUpload Kind = "upload"

	// KindProcessing indicates remote transcoding failed or violated its contract.
	KindProcessing Kind = "processing"

	// KindTimeout indicates the job poll deadline elapsed.
	KindTimeout Kind = "timeout"

	// KindPublish indicates the final record-create call was rejected.
	KindPublish Kind = "publish"

	// KindInvalidInput indicates the caller supplied an unusable payload.
	KindInvalidInput Kind = "invalid_input"

	// KindCanceled indicates the caller abandoned the call.
	KindCanceled Kind = "canceled"
)

// Error is the PublishFailure artifact: a kind plus a message suitable for
// direct display.
type Error struct {
	Kind    Kind
	Message string
	// Status is the remote HTTP status when the failure came from a response.
	Status int
	// Code is the remote XRPC error name (e.g. "ExpiredToken"), if any.
	Code string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap supports error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind so the sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is matching by kind.
var (
	Auth         = &Error{Kind: KindAuth}
	Upload       = &Error{Kind: KindUpload}
	Processing   = &Error{Kind: KindProcessing}
	Timeout      = &Error{Kind: KindTimeout}
	Publish      = &Error{Kind: KindPublish}
	InvalidInput = &Error{Kind: KindInvalidInput}
	Canceled     = &Error{Kind: KindCanceled}
)

// New creates a failure of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a failure of the given kind around an underlying error.
// A wrapped *Error keeps its original kind so the first classification wins.
func Wrap(kind Kind, message string, err error) *Error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Kind: existing.Kind, Message: message, Status: existing.Status, Code: existing.Code, Err: err}
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithStatus creates a failure that records the remote HTTP status.
func WithStatus(kind Kind, status int, message string) *Error {
	return &Error{Kind: kind, Message: message, Status: status}
}

// WithRemote creates a failure that records the remote HTTP status and XRPC
// error name.
func WithRemote(kind Kind, status int, code, message string) *Error {
	return &Error{Kind: kind, Message: message, Status: status, Code: code}
}

// SessionRejected reports whether a remote answer means the access token is
// no longer accepted: any 401, or a 400 naming an expired or invalid token.
func SessionRejected(status int, code string) bool {
	if status == http.StatusUnauthorized {
		return true
	}
	return status == http.StatusBadRequest && (code == "ExpiredToken" || code == "InvalidToken")
}

// SessionExpired reports whether err came from a remote rejecting the
// session's access token.
func SessionExpired(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return SessionRejected(e.Status, e.Code)
}

// KindOf extracts the kind from an error chain. Unclassified errors report an
// empty kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Message returns the display message of a classified error, falling back to
// err.Error() for anything else.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}

// FromContext returns a KindCanceled failure when ctx is done, nil otherwise.
// It is checked at every suspension point of a publish call.
func FromContext(ctx context.Context) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindCanceled, "publish deadline exceeded", err)
	}
	return Wrap(KindCanceled, "publish canceled", err)
}
