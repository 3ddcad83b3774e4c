package httpapi

import (
	"errors"

	"github.com/gcottom/go-zaplog"
	"github.com/gin-gonic/gin"
	"github.com/gruzd1sok/YTSage-telegram-bot/internal/services/session"
	"go.uber.org/zap"
)

type Handlers struct {
	Session *session.Service
}

func SetupRoutes(router *gin.Engine, sessionService *session.Service) {
	handler := &Handlers{Session: sessionService}
	router.GET("/health", handler.Health)
	router.GET("/status", handler.GetStatus)
}

func (h *Handlers) Health(ctx *gin.Context) {
	ResponseSuccess(ctx, HealthResponse{State: "UP"})
}

func (h *Handlers) GetStatus(ctx *gin.Context) {
	id := ctx.Query("id")
	if id == "" {
		zaplog.WarnC(ctx, "get status request without ID present: ID is required")
		ResponseFailure(ctx, errors.New("get status request without ID present: ID is required"))
		return
	}
	status, err := h.Session.GetStatus(ctx, id)
	if err != nil {
		zaplog.WarnC(ctx, "status not found", zap.String("id", id))
		ResponseNotFound(ctx, err)
		return
	}
	ResponseSuccess(ctx, *status)
}
