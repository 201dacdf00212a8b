package cartsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/dinecart/internal/domain"
	"github.com/fjod/dinecart/internal/graphql"
)

type Kind int

const (
	KindUnauthenticated Kind = iota + 1
	KindStaleState
	KindValidation
	KindServer
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindStaleState:
		return "stale_state"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

var (
	ErrUnauthenticated = errors.New("please login to continue")
	ErrInvalidArgument = errors.New("invalid argument")
)

const (
	msgLoginToAdd     = "Please login to add items to cart"
	msgSessionExpired = "Your session has expired. Please login again."
	msgNetwork        = "Network error. Please check your connection."
	msgItemGone       = "Item no longer in cart. Refreshing..."
	msgCartUpdated    = "Cart was updated. Refreshing..."
	msgItemAdded      = "Item added to cart"
	msgItemRemoved    = "Item removed from cart"
	msgCartCleared    = "Cart cleared"
)

// Error is what every failed operation returns, after it has been notified.
type Error struct {
	Kind         Kind
	Op           string
	RestaurantID string
	MenuItemID   string
	Err          error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return target == ErrUnauthenticated && e.Kind == KindUnauthenticated
}

// UserMessage is the text shown to the user for this failure.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindNetwork:
		return msgNetwork
	case KindUnauthenticated:
		if errors.Is(e.Err, ErrUnauthenticated) {
			return e.Err.Error()
		}
		return msgSessionExpired
	default:
		return e.Err.Error()
	}
}

// KindOf returns the kind of a cartsync error, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Wrap classifies err as a failure of op.
func Wrap(op string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: classify(err), Op: op, Err: err}
}

func classify(err error) Kind {
	switch {
	case errors.Is(err, ErrUnauthenticated), graphql.IsUnauthenticated(err):
		return KindUnauthenticated
	case graphql.IsNotFound(err):
		return KindStaleState
	case graphql.IsTransport(err), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindNetwork
	case errors.Is(err, ErrInvalidArgument), graphql.Code(err) == graphql.CodeBadUserInput:
		return KindValidation
	case errors.Is(err, domain.ErrInvalidCart), errors.Is(err, graphql.ErrMalformedResponse):
		return KindServer
	default:
		return KindServer
	}
}
