package pdom

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported is matched by every *UnsupportedError.
	ErrUnsupported = errors.New("unsupported operation")
	// ErrWrongKind is returned when a record is used as a kind it is not.
	ErrWrongKind = errors.New("wrong binding kind")
	// ErrUnknownNodeType is returned for discriminants missing from the registry.
	ErrUnknownNodeType = errors.New("unknown node type")
	// ErrTxClosed is returned by handles used after their transaction ended.
	ErrTxClosed = errors.New("transaction closed")
	// ErrReadOnly is returned by mutations attempted through a read transaction.
	ErrReadOnly = errors.New("read-only transaction")
)

// UnsupportedError reports a capability that a binding kind, or the name
// record, does not provide. It is distinct from a missing record.
type UnsupportedError struct {
	Kind       string
	Capability string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s: %s not supported", e.Kind, e.Capability)
}

// Is makes errors.Is(err, ErrUnsupported) hold.
func (e *UnsupportedError) Is(target error) bool { return target == ErrUnsupported }

func unsupported(kind, capability string) error {
	return &UnsupportedError{Kind: kind, Capability: capability}
}
