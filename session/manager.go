package session

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/pkg/metricskey"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent", "session")

// Defaults for the connect retry
const (
	DefaultMaxAttempts = 15
	DefaultDelay       = time.Second
)

// ErrManagerClosed is returned when the Manager is used after Close.
var ErrManagerClosed = errors.New("session manager is closed")

// Provider is the address of a tool provider.
type Provider struct {
	ID      string
	Address string
}

// Option configures the Manager
type Option func(*Manager)

// WithDialer sets the protocol dialer, MCPDialer by default.
func WithDialer(d Dialer) Option {
	return func(m *Manager) {
		m.dialer = d
	}
}

// WithProber sets the reachability prober, TCPProber by default.
func WithProber(p Prober) Option {
	return func(m *Manager) {
		m.prober = p
	}
}

// WithRetry sets the retry budget used by ConnectAll and Acquire.
func WithRetry(maxAttempts int, delay time.Duration) Option {
	return func(m *Manager) {
		m.maxAttempts = maxAttempts
		m.delay = delay
	}
}

// Manager establishes and owns provider sessions.
type Manager struct {
	dialer      Dialer
	prober      Prober
	maxAttempts int
	delay       time.Duration

	lock     sync.Mutex
	sessions map[string]*ProviderSession
	states   map[string]State
	closed   bool
}

// NewManager returns a new Manager
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		dialer:      MCPDialer{},
		prober:      TCPProber{},
		maxAttempts: DefaultMaxAttempts,
		delay:       DefaultDelay,
		sessions:    make(map[string]*ProviderSession),
		states:      make(map[string]State),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect probes the provider address, then performs the handshake.
// Each stage is attempted up to maxAttempts times with delay between attempts.
// The returned error is *ConnectError, or the context error on cancellation.
func (m *Manager) Connect(ctx context.Context, providerID, address string, maxAttempts int, delay time.Duration) (*ProviderSession, error) {
	if m.isClosed() {
		return nil, ErrManagerClosed
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	started := time.Now()
	m.setState(providerID, Connecting)

	addr, err := NormalizeAddress(address)
	if err != nil {
		return nil, m.failed(ctx, &ConnectError{Kind: Unreachable, ProviderID: providerID, Address: address, Err: err})
	}
	host, port := splitHostPort(addr)

	for attempt := 1; ; attempt++ {
		metricskey.StatsSessionConnectAttempts.IncrCounter(1, providerID)
		err = m.prober.Probe(ctx, addr)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, m.cancelled(ctx, providerID, attempt)
		}
		logger.ContextKV(ctx, xlog.INFO,
			"reason", "waiting for provider port",
			"provider", providerID,
			"host", host,
			"port", port,
			"attempt", attempt,
			"err", err.Error())
		if attempt >= maxAttempts {
			return nil, m.failed(ctx, &ConnectError{Kind: Unreachable, ProviderID: providerID, Address: addr, Attempts: attempt, Err: err})
		}
		if wait(ctx, delay) != nil {
			return nil, m.cancelled(ctx, providerID, attempt)
		}
	}

	var client Client
	for attempt := 1; ; attempt++ {
		client, err = m.dialer.Dial(ctx, addr)
		if err == nil {
			break
		}
		if client != nil {
			_ = client.Close()
		}
		if ctx.Err() != nil {
			return nil, m.cancelled(ctx, providerID, attempt)
		}
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "handshake_failed_after_probe",
			"provider", providerID,
			"address", addr,
			"attempt", attempt,
			"err", err.Error())
		if attempt >= maxAttempts {
			return nil, m.failed(ctx, &ConnectError{Kind: HandshakeFailed, ProviderID: providerID, Address: addr, Attempts: attempt, Err: err})
		}
		if wait(ctx, delay) != nil {
			return nil, m.cancelled(ctx, providerID, attempt)
		}
	}

	s := newProviderSession(providerID, addr, client)

	m.lock.Lock()
	if m.closed {
		m.lock.Unlock()
		_ = s.Close()
		return nil, ErrManagerClosed
	}
	old := m.sessions[providerID]
	m.sessions[providerID] = s
	m.states[providerID] = Connected
	m.lock.Unlock()

	if old != nil {
		_ = old.Close()
	}

	metricskey.StatsSessionConnected.IncrCounter(1, providerID)
	metricskey.PerfSessionConnect.MeasureSince(started, providerID)

	logger.ContextKV(ctx, xlog.INFO,
		"status", "connected",
		"provider", providerID,
		"address", addr,
		"elapsed", time.Since(started).String())
	return s, nil
}

// ConnectAll connects the providers concurrently, each with its own retry budget.
// Only sessions that succeeded are returned, failures are logged.
func (m *Manager) ConnectAll(ctx context.Context, providers []Provider) map[string]*ProviderSession {
	res := make(map[string]*ProviderSession, len(providers))
	var (
		lock sync.Mutex
		wg   sync.WaitGroup
	)
	for _, p := range providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			s, err := m.Connect(ctx, p.ID, p.Address, m.maxAttempts, m.delay)
			if err != nil {
				logger.ContextKV(ctx, xlog.WARNING,
					"status", "provider_unavailable",
					"provider", p.ID,
					"address", p.Address,
					"err", err.Error())
				return
			}
			lock.Lock()
			res[p.ID] = s
			lock.Unlock()
		}(p)
	}
	wg.Wait()
	return res
}

// Acquire connects the provider and returns the release function,
// that must be called on every exit path. The release function is never nil,
// and is safe to call more than once.
func (m *Manager) Acquire(ctx context.Context, p Provider) (*ProviderSession, func(), error) {
	s, err := m.Connect(ctx, p.ID, p.Address, m.maxAttempts, m.delay)
	if err != nil {
		return nil, func() {}, err
	}
	var once sync.Once
	release := func() {
		once.Do(func() {
			m.release(s)
		})
	}
	return s, release, nil
}

// Session returns the live session of the provider.
func (m *Manager) Session(providerID string) (*ProviderSession, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	s, ok := m.sessions[providerID]
	return s, ok
}

// States returns the last known state of each provider.
func (m *Manager) States() map[string]State {
	m.lock.Lock()
	defer m.lock.Unlock()
	res := make(map[string]State, len(m.states))
	for id, st := range m.states {
		res[id] = st
	}
	return res
}

// Close releases every session created by the Manager.
func (m *Manager) Close() error {
	m.lock.Lock()
	if m.closed {
		m.lock.Unlock()
		return nil
	}
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*ProviderSession)
	for id := range m.states {
		m.states[id] = Disconnected
	}
	m.lock.Unlock()

	var err error
	for id, s := range sessions {
		if cerr := s.Close(); cerr != nil {
			logger.KV(xlog.WARNING, "status", "close_failed", "provider", id, "err", cerr.Error())
			err = errors.CombineErrors(err, cerr)
		}
	}
	return err
}

func (m *Manager) release(s *ProviderSession) {
	m.lock.Lock()
	if cur, ok := m.sessions[s.ProviderID]; ok && cur == s {
		delete(m.sessions, s.ProviderID)
		m.states[s.ProviderID] = Disconnected
	}
	m.lock.Unlock()

	if err := s.Close(); err != nil {
		logger.KV(xlog.WARNING, "status", "close_failed", "provider", s.ProviderID, "err", err.Error())
	}
}

func (m *Manager) isClosed() bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.closed
}

func (m *Manager) setState(providerID string, st State) {
	m.lock.Lock()
	m.states[providerID] = st
	m.lock.Unlock()
}

func (m *Manager) failed(ctx context.Context, err *ConnectError) error {
	m.setState(err.ProviderID, Failed)
	metricskey.StatsSessionConnectFailed.IncrCounter(1, err.ProviderID, err.Kind.String())
	logger.ContextKV(ctx, xlog.ERROR,
		"status", err.Kind.String(),
		"provider", err.ProviderID,
		"address", err.Address,
		"attempts", err.Attempts,
		"err", err.Err.Error())
	return err
}

func (m *Manager) cancelled(ctx context.Context, providerID string, attempt int) error {
	m.setState(providerID, Disconnected)
	logger.ContextKV(ctx, xlog.INFO,
		"status", "cancelled_waiting_retry",
		"provider", providerID,
		"attempt", attempt)
	return errors.Wrapf(ctx.Err(), "connect to provider %s cancelled", providerID)
}

func wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func splitHostPort(address string) (string, string) {
	hp, err := HostPort(address)
	if err != nil {
		return address, ""
	}
	host, port, err := net.SplitHostPort(hp)
	if err != nil {
		return hp, ""
	}
	return host, port
}
