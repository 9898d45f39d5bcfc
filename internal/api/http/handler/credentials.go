package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/EternisAI/vconnector/internal/api/http/dto"
	"github.com/EternisAI/vconnector/internal/store"
	"github.com/gin-gonic/gin"
)

// CredentialStore is the subset of *store.Store the API serves.
type CredentialStore interface {
	Add(ctx context.Context, record store.ConnectionRecord) error
	Update(ctx context.Context, host string, update store.RecordUpdate) error
	Remove(ctx context.Context, host string) error
	SetEnabled(ctx context.Context, host string, enabled bool) error
	Get(ctx context.Context, host string) (store.ConnectionRecord, error)
	List(ctx context.Context) ([]store.ConnectionRecord, error)
}

type CredentialHandler struct {
	store CredentialStore
}

func NewCredentialHandler(store CredentialStore) *CredentialHandler {
	return &CredentialHandler{store: store}
}

func (h *CredentialHandler) List(c *gin.Context) {
	records, err := h.store.List(c.Request.Context())
	if err != nil {
		writeStoreError(c, "list credentials", err)
		return
	}

	resp := dto.ListCredentialsResponse{Credentials: make([]dto.CredentialResponse, len(records)), Count: len(records)}
	for i, r := range records {
		resp.Credentials[i] = toCredentialResponse(r)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *CredentialHandler) Get(c *gin.Context) {
	record, err := h.store.Get(c.Request.Context(), c.Param("host"))
	if err != nil {
		writeStoreError(c, "get credential", err)
		return
	}
	c.JSON(http.StatusOK, toCredentialResponse(record))
}

func (h *CredentialHandler) Create(c *gin.Context) {
	var req dto.CreateCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record := store.ConnectionRecord{
		Host:     req.Host,
		Username: req.Username,
		Password: req.Password,
		Enabled:  req.Enabled == nil || *req.Enabled,
	}
	if err := h.store.Add(c.Request.Context(), record); err != nil {
		writeStoreError(c, "add credential", err)
		return
	}

	slog.Info("Credential added", "host", record.Host, "subject", c.GetString("subject"))
	c.JSON(http.StatusCreated, toCredentialResponse(record))
}

func (h *CredentialHandler) Update(c *gin.Context) {
	var req dto.UpdateCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	host := c.Param("host")
	ctx := c.Request.Context()
	if err := h.store.Update(ctx, host, store.RecordUpdate{Username: req.Username, Password: req.Password}); err != nil {
		writeStoreError(c, "update credential", err)
		return
	}

	record, err := h.store.Get(ctx, host)
	if err != nil {
		writeStoreError(c, "get credential", err)
		return
	}
	slog.Info("Credential updated", "host", host, "subject", c.GetString("subject"))
	c.JSON(http.StatusOK, toCredentialResponse(record))
}

func (h *CredentialHandler) Delete(c *gin.Context) {
	host := c.Param("host")
	if err := h.store.Remove(c.Request.Context(), host); err != nil {
		writeStoreError(c, "remove credential", err)
		return
	}
	slog.Info("Credential removed", "host", host, "subject", c.GetString("subject"))
	c.Status(http.StatusNoContent)
}

func (h *CredentialHandler) Enable(c *gin.Context) {
	h.setEnabled(c, true)
}

func (h *CredentialHandler) Disable(c *gin.Context) {
	h.setEnabled(c, false)
}

func (h *CredentialHandler) setEnabled(c *gin.Context, enabled bool) {
	host := c.Param("host")
	if err := h.store.SetEnabled(c.Request.Context(), host, enabled); err != nil {
		writeStoreError(c, "set enabled", err)
		return
	}
	slog.Info("Credential enabled flag changed", "host", host, "enabled", enabled)
	c.Status(http.StatusNoContent)
}

func toCredentialResponse(r store.ConnectionRecord) dto.CredentialResponse {
	return dto.CredentialResponse{Host: r.Host, Username: r.Username, Enabled: r.Enabled}
}

func writeStoreError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "credential not found"})
	case errors.Is(err, store.ErrDuplicateKey):
		c.JSON(http.StatusConflict, gin.H{"error": "credential already exists"})
	case errors.Is(err, store.ErrInvalidRecord):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		slog.Error("Failed to "+op, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
