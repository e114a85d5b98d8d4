package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"alphapulse/internal/pipeline"
)

// StatusHandler exposes the scheduler-mode ops surface: the last run's
// outcome and a manual trigger.
type StatusHandler struct {
	Logger *zap.Logger
	Run    func(ctx context.Context) (pipeline.RefreshResult, error)

	mu        sync.RWMutex
	last      *pipeline.RefreshResult
	lastError string
	lastRunAt time.Time
}

func (h *StatusHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/status", h.status)
	r.POST("/api/v1/refresh", h.refresh)
}

// Record stores a run outcome; the cron job calls it after every refresh.
func (h *StatusHandler) Record(res pipeline.RefreshResult, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = &res
	h.lastError = ""
	if err != nil {
		h.lastError = err.Error()
	}
	h.lastRunAt = time.Now().UTC()
}

func (h *StatusHandler) status(c *gin.Context) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	payload := gin.H{"last_run": h.last, "last_error": h.lastError}
	if !h.lastRunAt.IsZero() {
		payload["last_run_at"] = h.lastRunAt.Format(time.RFC3339)
	}
	Ok(c, payload)
}

func (h *StatusHandler) refresh(c *gin.Context) {
	if h.Run == nil {
		Error(c, http.StatusServiceUnavailable, "pipeline not wired")
		return
	}
	res, err := h.Run(c.Request.Context())
	h.Record(res, err)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("manual refresh failed", zap.Error(err))
		}
		Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	Ok(c, res)
}
