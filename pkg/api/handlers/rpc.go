package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/urmzd/homai-panel/pkg/api/types"
	"github.com/urmzd/homai-panel/pkg/rpc"
)

// RPCHandler serves the remote procedure interface over HTTP and WebSocket
type RPCHandler struct {
	dispatcher *rpc.Dispatcher
	upgrader   websocket.Upgrader
}

// NewRPCHandler creates a new rpc handler
func NewRPCHandler(dispatcher *rpc.Dispatcher) *RPCHandler {
	return &RPCHandler{
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// the panel is served from other origins; CORS is open as well
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Call handles POST /rpc
// @Summary      Remote call
// @Description  Executes one remote call. Call failures are reported in the envelope's error field with status 200.
// @Tags         rpc
// @Accept       json
// @Produce      json
// @Param        request  body      rpc.Request   true  "Call envelope"
// @Success      200      {object}  rpc.Response
// @Failure      400      {object}  types.ErrorResponse  "Malformed envelope"
// @Router       /rpc [post]
func (h *RPCHandler) Call(c *gin.Context) {
	var req rpc.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   rpc.CodeInvalidRequest,
			Message: err.Error(),
		})
		return
	}
	if req.Method == "" {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   rpc.CodeInvalidRequest,
			Message: "method is required",
		})
		return
	}

	c.JSON(http.StatusOK, h.dispatcher.Dispatch(c.Request.Context(), &req))
}

// Methods handles GET /rpc/methods
// @Summary      List remote methods
// @Description  Returns the names of every registered remote call
// @Tags         rpc
// @Produce      json
// @Success      200  {object}  types.MethodsResponse
// @Router       /rpc/methods [get]
func (h *RPCHandler) Methods(c *gin.Context) {
	methods := h.dispatcher.Methods()
	c.JSON(http.StatusOK, types.MethodsResponse{
		Methods: methods,
		Count:   len(methods),
	})
}

// WebSocket handles GET /ws
// @Summary      WebSocket remote calls
// @Description  Upgrades to a WebSocket carrying call envelopes. Responses may arrive out of order and are matched by id.
// @Tags         rpc
// @Success      101  {string}  string  "Switching protocols"
// @Router       /ws [get]
func (h *RPCHandler) WebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	log.Debug().Str("client_ip", c.ClientIP()).Msg("WebSocket client connected")
	if err := rpc.ServeWS(c.Request.Context(), conn, h.dispatcher); err != nil {
		log.Warn().Err(err).Str("client_ip", c.ClientIP()).Msg("WebSocket connection closed")
		return
	}
	log.Debug().Str("client_ip", c.ClientIP()).Msg("WebSocket client disconnected")
}
