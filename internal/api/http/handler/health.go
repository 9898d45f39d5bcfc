package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/EternisAI/vconnector/internal/api/http/dto"
	"github.com/gin-gonic/gin"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	store Pinger
}

func NewHealthHandler(store Pinger) *HealthHandler {
	return &HealthHandler{store: store}
}

func (h *HealthHandler) Check(ctx *gin.Context) {
	if h.store == nil {
		ctx.JSON(http.StatusOK, dto.HealthResponse{Status: "ok"})
		return
	}
	if err := h.store.Ping(ctx.Request.Context()); err != nil {
		slog.Warn("Credential store unreachable", "error", err)
		ctx.JSON(http.StatusServiceUnavailable, dto.HealthResponse{Status: "degraded", Store: "unreachable"})
		return
	}
	ctx.JSON(http.StatusOK, dto.HealthResponse{Status: "ok", Store: "ok"})
}
