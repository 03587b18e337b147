package session

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind of the connect failure.
type Kind int

const (
	// Unreachable is returned when the provider address is not accepting connections.
	Unreachable Kind = iota + 1
	// HandshakeFailed is returned when the provider is reachable,
	// but the session could not be initialized.
	HandshakeFailed
)

func (k Kind) String() string {
	switch k {
	case Unreachable:
		return "unreachable"
	case HandshakeFailed:
		return "handshake_failed"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ConnectError is returned when a session could not be established.
type ConnectError struct {
	Kind       Kind
	ProviderID string
	Address    string
	Attempts   int
	Err        error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("provider %s at %s is %s after %d attempts: %v",
		e.ProviderID, e.Address, e.Kind, e.Attempts, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// IsUnreachable returns true if the err is ConnectError of Unreachable kind.
func IsUnreachable(err error) bool {
	var ce *ConnectError
	return errors.As(err, &ce) && ce.Kind == Unreachable
}

// IsHandshakeFailed returns true if the err is ConnectError of HandshakeFailed kind.
func IsHandshakeFailed(err error) bool {
	var ce *ConnectError
	return errors.As(err, &ce) && ce.Kind == HandshakeFailed
}
