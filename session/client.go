package session

import (
	"context"
	"net"
	"time"

	"github.com/cockroachdb/errors"
)

// ToolInfo is the tool declared by the provider.
type ToolInfo struct {
	Name        string
	Title       string
	Description string
	Properties  map[string]any
	Required    []string
}

// CallResult is the result of the tool call.
type CallResult struct {
	// Text is the concatenated text content
	Text string
	// IsError is set when the provider flags the result as an error
	IsError bool
}

// Client is the protocol session with a provider.
type Client interface {
	ListTools(ctx context.Context) ([]ToolInfo, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error)
	Close() error
}

// Dialer opens a Client and performs the protocol handshake.
type Dialer interface {
	Dial(ctx context.Context, address string) (Client, error)
}

// Prober checks that the provider accepts connections.
type Prober interface {
	Probe(ctx context.Context, address string) error
}

// DialerFunc is an adapter to use a function as Dialer.
type DialerFunc func(ctx context.Context, address string) (Client, error)

// Dial calls f(ctx, address)
func (f DialerFunc) Dial(ctx context.Context, address string) (Client, error) {
	return f(ctx, address)
}

// ProberFunc is an adapter to use a function as Prober.
type ProberFunc func(ctx context.Context, address string) error

// Probe calls f(ctx, address)
func (f ProberFunc) Probe(ctx context.Context, address string) error {
	return f(ctx, address)
}

// TCPProber opens and immediately closes a TCP connection.
type TCPProber struct {
	Timeout time.Duration
}

// Probe implements Prober
func (p TCPProber) Probe(ctx context.Context, address string) error {
	hostPort, err := HostPort(address)
	if err != nil {
		return err
	}
	timeout := p.Timeout
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", hostPort)
	if err != nil {
		return errors.WithStack(err)
	}
	_ = conn.Close()
	return nil
}
