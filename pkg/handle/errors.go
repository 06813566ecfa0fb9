package handle

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by this module's handle operations
// matches exactly one of these with errors.Is.
var (
	ErrHandleSyntax        = errors.New("handle syntax error")
	ErrHandleNotFound      = errors.New("handle not found")
	ErrHandleAlreadyExists = errors.New("handle already exists")
	ErrGenericHandle       = errors.New("handle server error")
	ErrBrokenHandleRecord  = errors.New("broken handle record")
	ErrReverseLookup       = errors.New("reverse lookup failed")
	ErrEncoding            = errors.New("invalid value encoding")
	ErrIllegalOperation    = errors.New("illegal handle operation")
	ErrInvalidEntries      = errors.New("invalid handle entries")
)

// Causes that are reported underneath one of the kinds above.
var (
	ErrMalformedRecord = errors.New("malformed handle record")
	ErrReadOnly        = errors.New("client has no write credentials")
)

// Error carries the context of a failed handle operation.
type Error struct {
	Op     string // Operation, e.g. "CreateHandle"
	Handle string // Handle the operation was about, if any
	Err    error  // One of the error kinds
	Msg    string // Human readable detail

	// Raw server response, when one was received.
	StatusCode int
	Body       []byte

	// Underlying error, e.g. a transport or decoding failure.
	Cause error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Handle != "" {
		fmt.Fprintf(&b, " %s", e.Handle)
	}
	b.WriteString(": ")
	if e.Msg != "" {
		b.WriteString(e.Msg)
		b.WriteString(": ")
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d", e.StatusCode)
		if len(e.Body) > 0 {
			fmt.Fprintf(&b, ", body %s", truncate(e.Body, 512))
		}
		b.WriteString(")")
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap exposes both the error kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	var errs []error
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// NewError is a shortcut for an Error without server response.
func NewError(op, h string, kind error, format string, args ...interface{}) *Error {
	return &Error{
		Op:     op,
		Handle: h,
		Err:    kind,
		Msg:    fmt.Sprintf(format, args...),
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
