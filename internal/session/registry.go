package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/EternisAI/vconnector/internal/remote"
	"github.com/EternisAI/vconnector/internal/store"
)

var ErrNoSession = errors.New("no session registered for host")

// Status is a point-in-time snapshot of a registered session.
type Status struct {
	ID          string    `json:"id"`
	Host        string    `json:"host"`
	State       State     `json:"state"`
	ConnectedAt time.Time `json:"connected_at"`
}

type entry struct {
	mu      sync.Mutex
	manager *Manager
}

// Registry keeps one Manager per host for a long-running process. Each
// Manager is only touched under its entry lock, so callers on different
// goroutines never share a Manager unsynchronized.
type Registry struct {
	endpoint remote.Endpoint
	opts     []Option

	sessions map[string]*entry
	mu       sync.RWMutex
}

func NewRegistry(endpoint remote.Endpoint, opts ...Option) *Registry {
	return &Registry{
		endpoint: endpoint,
		opts:     opts,
		sessions: make(map[string]*entry),
	}
}

// Open connects a new Manager for record.Host, replacing and disconnecting
// any existing session for that host first.
func (r *Registry) Open(ctx context.Context, record store.ConnectionRecord) (Status, error) {
	r.mu.Lock()
	existing, ok := r.sessions[record.Host]
	delete(r.sessions, record.Host)
	r.mu.Unlock()

	if ok {
		slog.Warn("Host already connected, replacing session", "host", record.Host)
		existing.mu.Lock()
		_ = existing.manager.Disconnect(ctx)
		existing.mu.Unlock()
	}

	m := New(record, r.endpoint, r.opts...)
	if err := m.Connect(ctx); err != nil {
		return Status{}, err
	}

	e := &entry{manager: m}
	r.mu.Lock()
	raced, ok := r.sessions[record.Host]
	r.sessions[record.Host] = e
	total := len(r.sessions)
	r.mu.Unlock()

	if ok {
		raced.mu.Lock()
		_ = raced.manager.Disconnect(ctx)
		raced.mu.Unlock()
	}

	slog.Info("Session registered", "host", record.Host, "session_id", m.ID(), "total_sessions", total)
	return statusOf(m), nil
}

// With runs fn with exclusive access to the host's Manager.
func (r *Registry) With(host string, fn func(m *Manager) error) error {
	r.mu.RLock()
	e, ok := r.sessions[host]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSession, host)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.manager)
}

// Close disconnects and forgets the host's session.
func (r *Registry) Close(ctx context.Context, host string) error {
	r.mu.Lock()
	e, ok := r.sessions[host]
	delete(r.sessions, host)
	total := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSession, host)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.manager.Disconnect(ctx)

	slog.Info("Session deregistered", "host", host, "total_sessions", total)
	return err
}

func (r *Registry) Get(host string) (Status, bool) {
	r.mu.RLock()
	e, ok := r.sessions[host]
	r.mu.RUnlock()
	if !ok {
		return Status{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return statusOf(e.manager), true
}

// List returns the status of every session ordered by host.
func (r *Registry) List() []Status {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	statuses := make([]Status, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		statuses = append(statuses, statusOf(e.manager))
		e.mu.Unlock()
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Host < statuses[j].Host })
	return statuses
}

// CloseAll disconnects every session.
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()

	for host, e := range sessions {
		e.mu.Lock()
		if err := e.manager.Disconnect(ctx); err != nil {
			slog.Error("Failed to disconnect during shutdown", "host", host, "error", err)
		}
		e.mu.Unlock()
	}
}

func statusOf(m *Manager) Status {
	return Status{
		ID:          m.ID(),
		Host:        m.Host(),
		State:       m.State(),
		ConnectedAt: m.ConnectedAt(),
	}
}
