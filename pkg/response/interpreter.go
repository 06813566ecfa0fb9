// Package response turns raw server responses into records or typed errors.
//
// The handle REST API reports outcomes twice: as HTTP status and as the
// Handle protocol responseCode in the JSON body. Classify consults both and
// is the only place that decides what a response means.
package response

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/eudat-b2safe/b2handle/pkg/handle"
)

// Kind is the classified outcome of a response.
type Kind int

const (
	KindSuccess Kind = iota
	KindNotFound
	KindSyntax
	KindAlreadyExists
	KindUnauthorized
	KindBroken
	KindGeneric
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindNotFound:
		return "not-found"
	case KindSyntax:
		return "syntax"
	case KindAlreadyExists:
		return "already-exists"
	case KindUnauthorized:
		return "unauthorized"
	case KindBroken:
		return "broken"
	default:
		return "generic"
	}
}

// Err returns the error kind a failed outcome maps to, nil for success.
func (k Kind) Err() error {
	switch k {
	case KindSuccess:
		return nil
	case KindNotFound:
		return handle.ErrHandleNotFound
	case KindSyntax:
		return handle.ErrHandleSyntax
	case KindAlreadyExists:
		return handle.ErrHandleAlreadyExists
	case KindBroken:
		return handle.ErrBrokenHandleRecord
	default:
		return handle.ErrGenericHandle
	}
}

// Outcome is the result of Classify.
type Outcome struct {
	Kind         Kind
	Status       int
	ResponseCode int  // 0 when the body carries none
	HasCode      bool // whether the body carried a responseCode
	Message      string
	Body         []byte
}

type envelope struct {
	ResponseCode *int   `json:"responseCode"`
	Message      string `json:"message"`
}

// Classify maps an HTTP status and body to an Outcome. For 2xx statuses the
// responseCode decides; otherwise the status alone does.
func Classify(status int, body []byte) Outcome {
	o := Outcome{Status: status, Body: body}

	var env envelope
	jsonErr := json.Unmarshal(body, &env)
	if jsonErr == nil && env.ResponseCode != nil {
		o.ResponseCode = *env.ResponseCode
		o.HasCode = true
	}
	o.Message = env.Message

	switch {
	case status >= 200 && status < 300:
		if !o.HasCode {
			o.Kind = KindBroken
			return o
		}
		switch o.ResponseCode {
		case handle.ResponseSuccess, handle.ResponseError, handle.ResponseValuesNotFound:
			o.Kind = KindSuccess
		case handle.ResponseHandleNotFound:
			o.Kind = KindNotFound
		case handle.ResponseInvalidHandle:
			o.Kind = KindSyntax
		case handle.ResponseHandleAlreadyExists:
			o.Kind = KindAlreadyExists
		default:
			o.Kind = KindGeneric
		}
	case status == http.StatusBadRequest:
		o.Kind = KindSyntax
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		o.Kind = KindUnauthorized
	case status == http.StatusNotFound:
		o.Kind = KindNotFound
	case status == http.StatusConflict:
		o.Kind = KindAlreadyExists
	default:
		o.Kind = KindGeneric
	}
	return o
}

// Error converts a failed outcome into a *handle.Error. It returns nil for
// success.
func (o Outcome) Error(op, h string) error {
	if o.Kind == KindSuccess {
		return nil
	}
	return &handle.Error{
		Op:         op,
		Handle:     h,
		Err:        o.Kind.Err(),
		Msg:        o.describe(),
		StatusCode: o.Status,
		Body:       o.Body,
	}
}

func (o Outcome) describe() string {
	var msg string
	switch o.Kind {
	case KindUnauthorized:
		msg = "credentials rejected"
	case KindBroken:
		msg = "response carries no responseCode"
	}
	if o.HasCode {
		code := fmt.Sprintf("responseCode %d %s", o.ResponseCode, handle.ResponseCodeName(o.ResponseCode))
		if msg == "" {
			msg = code
		} else {
			msg += ", " + code
		}
	}
	if o.Message != "" {
		if msg == "" {
			msg = o.Message
		} else {
			msg += ": " + o.Message
		}
	}
	return msg
}

// CheckRecordResponse classifies a read response and decodes its record.
// A success response whose body is not a valid record is
// ErrBrokenHandleRecord.
func CheckRecordResponse(op, h string, status int, body []byte) (*handle.Record, error) {
	o := Classify(status, body)
	if err := o.Error(op, h); err != nil {
		return nil, err
	}

	rec, err := handle.Decode(body)
	if err != nil {
		return nil, &handle.Error{
			Op:         op,
			Handle:     h,
			Err:        handle.ErrBrokenHandleRecord,
			StatusCode: status,
			Body:       body,
			Cause:      err,
		}
	}
	return rec, nil
}

// CheckAckResponse classifies the response of a write or delete and returns
// its responseCode.
func CheckAckResponse(op, h string, status int, body []byte) (int, error) {
	o := Classify(status, body)
	if err := o.Error(op, h); err != nil {
		return 0, err
	}
	return o.ResponseCode, nil
}

// CheckReverseLookupResponse extracts the handle names of a reverse lookup
// response. The servlet answers either {"handles": [...]} or a bare array.
// Every failure, including a server that does not support reverse lookup,
// is ErrReverseLookup.
func CheckReverseLookupResponse(status int, body []byte) ([]string, error) {
	fail := func(msg string, cause error) error {
		return &handle.Error{
			Op:         "SearchHandle",
			Err:        handle.ErrReverseLookup,
			Msg:        msg,
			StatusCode: status,
			Body:       body,
			Cause:      cause,
		}
	}

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return nil, fail("reverse lookup credentials rejected", nil)
	case status == http.StatusNotFound:
		return nil, fail("reverse lookup servlet not found", nil)
	case status < 200 || status >= 300:
		return nil, fail("unexpected status", nil)
	}

	var handles []string
	if err := json.Unmarshal(body, &handles); err == nil {
		return nonNil(handles), nil
	}

	var env struct {
		envelope
		Handles *[]string `json:"handles"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fail("malformed reverse lookup response", err)
	}
	if env.ResponseCode != nil && *env.ResponseCode == handle.ResponseOperationNotSupported {
		return nil, fail("reverse lookup is not supported by the server", nil)
	}
	if env.Handles == nil {
		return nil, fail("reverse lookup response has no handles", nil)
	}
	return nonNil(*env.Handles), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
