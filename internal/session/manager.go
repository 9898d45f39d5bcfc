package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/EternisAI/vconnector/internal/lockfile"
	"github.com/EternisAI/vconnector/internal/remote"
	"github.com/EternisAI/vconnector/internal/store"
	"github.com/google/uuid"
)

// ErrDisabled is returned when connecting with a disabled record.
var ErrDisabled = fmt.Errorf("%w: connection record is disabled", remote.ErrAuthentication)

// State is the lifecycle state of a Manager.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	// StateReconnecting is held only while Reconnect authenticates.
	StateReconnecting State = "reconnecting"
)

type Option func(*Manager)

// WithTimeout bounds each authentication attempt.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.timeout = d
	}
}

// WithLockDir makes Connect hold a per-host lock file in dir.
func WithLockDir(dir string) Option {
	return func(m *Manager) {
		m.lockDir = dir
	}
}

// Manager owns a single authenticated session to one endpoint. It performs
// no background work: reconnection only happens when the caller asks.
// A Manager is not safe for concurrent use.
type Manager struct {
	id       string
	record   store.ConnectionRecord
	endpoint remote.Endpoint
	timeout  time.Duration
	lockDir  string

	state       State
	conn        remote.Conn
	lock        *lockfile.Lock
	connectedAt time.Time
	// generation increments on every successful connect; views created
	// under an older generation belong to a dead session.
	generation uint64
}

func New(record store.ConnectionRecord, endpoint remote.Endpoint, opts ...Option) *Manager {
	m := &Manager{
		id:       uuid.New().String(),
		record:   record,
		endpoint: endpoint,
		state:    StateDisconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) ID() string {
	return m.id
}

func (m *Manager) Host() string {
	return m.record.Host
}

func (m *Manager) State() State {
	return m.state
}

// ConnectedAt is zero unless the manager is connected.
func (m *Manager) ConnectedAt() time.Time {
	if !m.IsConnected() {
		return time.Time{}
	}
	return m.connectedAt
}

// IsConnected reports whether a live handle is held. It never contacts the
// endpoint, so a silently expired session still reports true.
func (m *Manager) IsConnected() bool {
	return m.state == StateConnected && m.conn != nil
}

// Connect authenticates with the stored record. Connecting an already
// connected manager is a no-op.
func (m *Manager) Connect(ctx context.Context) error {
	if m.IsConnected() {
		return nil
	}
	return m.connect(ctx, StateConnecting)
}

// Disconnect releases the session. It is a no-op when not connected.
func (m *Manager) Disconnect(ctx context.Context) error {
	if m.conn == nil {
		slog.Debug("No need to disconnect, not connected", "host", m.record.Host)
		m.state = StateDisconnected
		m.releaseLock()
		return nil
	}

	slog.Info("Disconnecting from vSphere host", "host", m.record.Host, "session_id", m.id)

	conn := m.conn
	m.conn = nil
	m.state = StateDisconnected

	if err := conn.Logout(ctx); err != nil && !errors.Is(err, remote.ErrNotConnected) {
		slog.Warn("Logout failed, session handle dropped", "host", m.record.Host, "error", err)
	}
	m.releaseLock()
	return nil
}

// Reconnect drops the current session, ignoring errors, and connects again
// with the same credentials.
func (m *Manager) Reconnect(ctx context.Context) error {
	_ = m.Disconnect(ctx)
	return m.connect(ctx, StateReconnecting)
}

// EnsureConnected makes one round trip to confirm the session and reconnects
// once if the check fails or no session is held.
func (m *Manager) EnsureConnected(ctx context.Context) error {
	if m.IsConnected() {
		err := m.Call(ctx, func(ctx context.Context, conn remote.Conn) error {
			return conn.Ping(ctx)
		})
		if err == nil {
			return nil
		}
		slog.Warn("Session check failed, reconnecting", "host", m.record.Host, "error", err)
	}
	return m.Reconnect(ctx)
}

// Conn returns the live handle or ErrNotConnected.
func (m *Manager) Conn() (remote.Conn, error) {
	if !m.IsConnected() {
		return nil, fmt.Errorf("%w: %s", remote.ErrNotConnected, m.record.Host)
	}
	return m.conn, nil
}

// Call runs fn against the live handle. If the endpoint reports the session
// expired the manager drops to StateDisconnected; the returned error then
// wraps remote.ErrNotConnected and the caller decides whether to Reconnect.
func (m *Manager) Call(ctx context.Context, fn func(ctx context.Context, conn remote.Conn) error) error {
	conn, err := m.Conn()
	if err != nil {
		return err
	}

	err = fn(ctx, conn)
	if err != nil && errors.Is(err, remote.ErrSessionExpired) && m.conn == conn {
		slog.Warn("Session lost", "host", m.record.Host, "session_id", m.id)
		m.conn = nil
		m.state = StateDisconnected
		m.releaseLock()
	}
	return err
}

func (m *Manager) connect(ctx context.Context, transient State) error {
	host := m.record.Host
	if !m.record.Enabled {
		return fmt.Errorf("%w: %s", ErrDisabled, host)
	}

	if m.lockDir != "" {
		lock, err := lockfile.Acquire(m.lockDir, host)
		if err != nil {
			slog.Error("Lock file exists, aborting connect", "host", host, "error", err)
			return err
		}
		m.lock = lock
	}

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	m.state = transient
	slog.Info("Connecting to vSphere host", "host", host, "username", m.record.Username, "state", string(transient))

	conn, err := m.endpoint.Authenticate(ctx, remote.Credentials{
		Host:     host,
		Username: m.record.Username,
		Password: m.record.Password,
	})
	if err != nil {
		m.state = StateDisconnected
		m.releaseLock()
		if !errors.Is(err, remote.ErrAuthentication) && !errors.Is(err, remote.ErrConnectivity) {
			err = fmt.Errorf("%w: %v", remote.ErrConnectivity, err)
		}
		slog.Error("Connection failed", "host", host, "error", err)
		return fmt.Errorf("connect to %s: %w", host, err)
	}

	m.conn = conn
	m.state = StateConnected
	m.connectedAt = time.Now()
	m.generation++

	slog.Info("Connected to vSphere host", "host", host, "session_id", m.id)
	return nil
}

func (m *Manager) releaseLock() {
	if err := m.lock.Release(); err != nil {
		slog.Warn("Failed to release lock", "host", m.record.Host, "error", err)
	}
	m.lock = nil
}
