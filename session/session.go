package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// ErrClosed is returned when the session is used after Close.
var ErrClosed = errors.New("session is closed")

// State of the provider session.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ProviderSession is a live session with a tool provider.
// It is owned by the Manager that created it.
type ProviderSession struct {
	ProviderID string
	Address    string

	state     atomic.Int32
	client    Client
	closeOnce sync.Once
}

func newProviderSession(providerID, address string, client Client) *ProviderSession {
	s := &ProviderSession{
		ProviderID: providerID,
		Address:    address,
		client:     client,
	}
	s.state.Store(int32(Connected))
	return s
}

// State returns the current state of the session.
func (s *ProviderSession) State() State {
	return State(s.state.Load())
}

// ListTools returns the tools declared by the provider.
func (s *ProviderSession) ListTools(ctx context.Context) ([]ToolInfo, error) {
	if s.State() != Connected {
		return nil, errors.Wrapf(ErrClosed, "provider %s", s.ProviderID)
	}
	return s.client.ListTools(ctx)
}

// CallTool calls the tool by its provider local name.
func (s *ProviderSession) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	if s.State() != Connected {
		return nil, errors.Wrapf(ErrClosed, "provider %s", s.ProviderID)
	}
	return s.client.CallTool(ctx, name, args)
}

// Close releases the transport.
// It is safe to call Close more than once, the later calls return nil.
func (s *ProviderSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.state.Store(int32(Disconnected))
		err = s.client.Close()
	})
	return err
}
