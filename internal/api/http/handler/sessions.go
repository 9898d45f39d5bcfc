package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/EternisAI/vconnector/internal/api/http/dto"
	"github.com/EternisAI/vconnector/internal/browser"
	"github.com/EternisAI/vconnector/internal/cache"
	"github.com/EternisAI/vconnector/internal/collector"
	"github.com/EternisAI/vconnector/internal/lockfile"
	"github.com/EternisAI/vconnector/internal/remote"
	"github.com/EternisAI/vconnector/internal/session"
	"github.com/EternisAI/vconnector/internal/store"
	"github.com/gin-gonic/gin"
)

type CacheConfig struct {
	Size int           `mapstructure:"size"`
	TTL  time.Duration `mapstructure:"ttl"`
}

type SessionHandler struct {
	store    CredentialStore
	registry *session.Registry
	cacheCfg CacheConfig

	mu     sync.Mutex
	caches map[string]*cache.Inventory[remote.ObjectRef]
}

func NewSessionHandler(store CredentialStore, registry *session.Registry, cacheCfg CacheConfig) *SessionHandler {
	return &SessionHandler{
		store:    store,
		registry: registry,
		cacheCfg: cacheCfg,
		caches:   make(map[string]*cache.Inventory[remote.ObjectRef]),
	}
}

func (h *SessionHandler) List(c *gin.Context) {
	statuses := h.registry.List()
	resp := dto.ListSessionsResponse{Sessions: make([]dto.SessionResponse, len(statuses)), Count: len(statuses)}
	for i, s := range statuses {
		resp.Sessions[i] = toSessionResponse(s)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SessionHandler) Get(c *gin.Context) {
	status, ok := h.registry.Get(c.Param("host"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(status))
}

// Connect opens a session for host using its stored credentials.
func (h *SessionHandler) Connect(c *gin.Context) {
	ctx := c.Request.Context()
	host := c.Param("host")

	record, err := h.store.Get(ctx, host)
	if err != nil {
		writeStoreError(c, "get credential", err)
		return
	}

	status, err := h.registry.Open(ctx, record)
	if err != nil {
		writeSessionError(c, host, err)
		return
	}
	h.dropCache(host)
	c.JSON(http.StatusCreated, toSessionResponse(status))
}

func (h *SessionHandler) Disconnect(c *gin.Context) {
	host := c.Param("host")
	if err := h.registry.Close(c.Request.Context(), host); err != nil {
		writeSessionError(c, host, err)
		return
	}
	h.dropCache(host)
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) Reconnect(c *gin.Context) {
	ctx := c.Request.Context()
	host := c.Param("host")

	err := h.registry.With(host, func(m *session.Manager) error {
		return m.Reconnect(ctx)
	})
	if err != nil {
		writeSessionError(c, host, err)
		return
	}
	status, _ := h.registry.Get(host)
	c.JSON(http.StatusOK, toSessionResponse(status))
}

func (h *SessionHandler) Collect(c *gin.Context) {
	var req dto.CollectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	host := c.Param("host")

	var records []collector.PropertyRecord
	err := h.registry.With(host, func(m *session.Manager) error {
		view, err := m.OpenView(ctx, req.Kind, fromDTORef(req.Root))
		if err != nil {
			return err
		}
		defer func() {
			if err := view.Release(ctx); err != nil {
				slog.Warn("Failed to release view", "host", host, "error", err)
			}
		}()
		records, err = collector.Collect(ctx, view, req.Kind, req.Paths)
		return err
	})
	if err != nil {
		writeSessionError(c, host, err)
		return
	}

	resp := dto.CollectResponse{Records: make([]dto.PropertyRecord, len(records)), Count: len(records)}
	for i, r := range records {
		resp.Records[i] = toPropertyRecord(r)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SessionHandler) Lookup(c *gin.Context) {
	var req dto.LookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	host := c.Param("host")

	var resp dto.LookupResponse
	err := h.registry.With(host, func(m *session.Manager) error {
		var opts []browser.Option
		if inv := h.cacheFor(host); inv != nil {
			opts = append(opts, browser.WithCache(inv))
		}
		ref, found, err := browser.New(m, opts...).GetByProperty(ctx, req.Property, req.Value, req.Kind, fromDTORef(req.Root))
		if err != nil {
			return err
		}
		resp.Found = found
		if found {
			resp.Object = &dto.ObjectRef{Kind: ref.Kind, ID: ref.ID}
		}
		return nil
	})
	if err != nil {
		writeSessionError(c, host, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SessionHandler) cacheFor(host string) *cache.Inventory[remote.ObjectRef] {
	if h.cacheCfg.TTL <= 0 {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if inv, ok := h.caches[host]; ok {
		return inv
	}
	inv, err := cache.New[remote.ObjectRef](h.cacheCfg.Size, h.cacheCfg.TTL)
	if err != nil {
		slog.Error("Object cache disabled", "error", err)
		return nil
	}
	h.caches[host] = inv
	return inv
}

func (h *SessionHandler) dropCache(host string) {
	h.mu.Lock()
	delete(h.caches, host)
	h.mu.Unlock()
}

func toSessionResponse(s session.Status) dto.SessionResponse {
	resp := dto.SessionResponse{ID: s.ID, Host: s.Host, State: string(s.State)}
	if !s.ConnectedAt.IsZero() {
		at := s.ConnectedAt
		resp.ConnectedAt = &at
	}
	return resp
}

func toPropertyRecord(r collector.PropertyRecord) dto.PropertyRecord {
	out := dto.PropertyRecord{
		Object:     dto.ObjectRef{Kind: r.Object.Kind, ID: r.Object.ID},
		Properties: make(map[string]any, len(r.Values)),
	}
	for path, v := range r.Values {
		if r.IsAbsent(path) {
			out.Properties[path] = nil
			out.Absent = append(out.Absent, path)
			continue
		}
		out.Properties[path] = toDTOValue(v)
	}
	sort.Strings(out.Absent)
	return out
}

func toDTOValue(v any) any {
	switch ref := v.(type) {
	case session.ObjectRef:
		return dto.ObjectRef{Kind: ref.Kind, ID: ref.ID}
	case []session.ObjectRef:
		refs := make([]dto.ObjectRef, len(ref))
		for i, r := range ref {
			refs[i] = dto.ObjectRef{Kind: r.Kind, ID: r.ID}
		}
		return refs
	}
	return v
}

func fromDTORef(ref *dto.ObjectRef) remote.ObjectRef {
	if ref == nil {
		return remote.ObjectRef{}
	}
	return remote.ObjectRef{Kind: ref.Kind, ID: ref.ID}
}

func writeSessionError(c *gin.Context, host string, err error) {
	var rerr *remote.Error
	switch {
	case errors.Is(err, session.ErrNoSession):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, lockfile.ErrLocked):
		c.JSON(http.StatusConflict, gin.H{"error": "host is locked by another process"})
	case errors.Is(err, remote.ErrNotConnected):
		c.JSON(http.StatusConflict, gin.H{"error": "session is not connected"})
	case errors.Is(err, remote.ErrAuthentication):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, remote.ErrConnectivity), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case errors.As(err, &rerr):
		status := http.StatusBadRequest
		if rerr.Denied {
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": rerr.Error(), "fault": rerr.Fault, "path": rerr.Path})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "credential not found"})
	default:
		slog.Error("Session operation failed", "host", host, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
