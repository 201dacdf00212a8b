package graphql

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes the API puts in extensions.code.
const (
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeCartNotFound    = "CART_NOT_FOUND"
	CodeItemNotFound    = "ITEM_NOT_FOUND"
	CodeBadUserInput    = "BAD_USER_INPUT"
)

var ErrMalformedResponse = errors.New("malformed graphql response")

type ErrorItem struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e ErrorItem) Code() string {
	if code, ok := e.Extensions["code"].(string); ok {
		return code
	}
	return ""
}

// ResponseError carries the errors array of a GraphQL response.
type ResponseError struct {
	Operation string
	Errors    []ErrorItem
}

// Error returns the first message verbatim; it is shown to users as is.
func (e *ResponseError) Error() string {
	if len(e.Errors) == 0 {
		return e.Operation + ": unknown error"
	}
	return e.Errors[0].Message
}

// Code returns the first non-empty extensions.code.
func (e *ResponseError) Code() string {
	for _, item := range e.Errors {
		if c := item.Code(); c != "" {
			return c
		}
	}
	return ""
}

// TransportError is anything that kept a GraphQL response from arriving:
// dial/timeout errors, an open breaker, or a non-GraphQL HTTP status.
type TransportError struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: http status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Code extracts the structured error code of err, or "".
func Code(err error) string {
	var re *ResponseError
	if errors.As(err, &re) {
		return re.Code()
	}
	return ""
}

// IsNotFound reports a missing cart or cart item. The structured code wins;
// the message match only covers servers that send no code.
func IsNotFound(err error) bool {
	var re *ResponseError
	if !errors.As(err, &re) {
		return false
	}
	switch re.Code() {
	case CodeNotFound, CodeCartNotFound, CodeItemNotFound:
		return true
	case "":
		msg := re.Error()
		return strings.Contains(msg, "Item not found in cart") || strings.Contains(msg, "Cart not found")
	default:
		return false
	}
}

func IsUnauthenticated(err error) bool {
	var re *ResponseError
	if !errors.As(err, &re) {
		var te *TransportError
		return errors.As(err, &te) && te.StatusCode == 401
	}
	switch re.Code() {
	case CodeUnauthenticated:
		return true
	case "":
		msg := re.Error()
		return strings.Contains(msg, "Unauthorized") || strings.Contains(msg, "Authentication")
	default:
		return false
	}
}
