package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/urmzd/homai-panel/pkg/api/types"
)

const healthTimeout = 2 * time.Second

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	store    Pinger
	sessions func() int
}

// NewHealthHandler creates a new health handler. sessions may be nil.
func NewHealthHandler(store Pinger, sessions func() int) *HealthHandler {
	return &HealthHandler{store: store, sessions: sessions}
}

// Health handles GET /health
// @Summary      Health check
// @Description  Returns the health status of the API and its database
// @Tags         health
// @Produce      json
// @Success      200  {object}  types.HealthResponse  "Service is healthy"
// @Failure      503  {object}  types.HealthResponse  "Service is degraded"
// @Router       /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	dbStatus := "connected"
	if err := h.store.PingContext(ctx); err != nil {
		log.Warn().Err(err).Msg("Database ping failed")
		dbStatus = "unreachable"
	}

	status := "healthy"
	httpStatus := http.StatusOK

	if dbStatus != "connected" {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	resp := types.HealthResponse{
		Status:    status,
		Database:  dbStatus,
		Timestamp: time.Now(),
	}
	if h.sessions != nil {
		resp.Sessions = h.sessions()
	}
	c.JSON(httpStatus, resp)
}
