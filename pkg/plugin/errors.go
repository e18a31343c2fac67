package plugin

import (
	"errors"
	"fmt"

	"mqw.szuro.net/pkg/item"
)

var (
	// ErrDelivery marks every error produced by a service.
	ErrDelivery = errors.New("delivery failed")

	// ErrInvalidAddress is returned when addrs hold a value the backend cannot use.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrNotInitialized is returned when Deliver runs before Initialize.
	ErrNotInitialized = errors.New("service not initialized")

	// ErrUnsupported is returned when the host platform lacks the backend.
	ErrUnsupported = errors.New("unsupported on this platform")
)

// DeliveryError wraps a backend failure with the target that produced it.
type DeliveryError struct {
	Service string
	Target  string
	Err     error
}

// NewDeliveryError wraps err for the item's service and target. A nil err
// yields nil.
func NewDeliveryError(it *item.Item, err error) error {
	if err == nil {
		return nil
	}
	var de *DeliveryError
	if errors.As(err, &de) {
		return err
	}
	return &DeliveryError{Service: it.Service, Target: it.Target, Err: err}
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s:%s: %v", e.Service, e.Target, e.Err)
}

func (e *DeliveryError) Unwrap() []error {
	return []error{ErrDelivery, e.Err}
}
