// Package api exposes the coordination core's control surface over HTTP.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taproom/internal/apperr"
	"taproom/internal/auth"
	"taproom/internal/broadcast"
	"taproom/internal/orders"
	"taproom/internal/stock"
	"taproom/internal/workspace"
)

// Server represents the main API handler for the POS core
type Server struct {
	Router  *gin.Engine
	drafts  *workspace.Manager
	orders  *orders.Service
	tracker *stock.Tracker
	checker *auth.Checker
	hub     *broadcast.Hub
}

// NewServer creates the API server and wires all routes
func NewServer(drafts *workspace.Manager, ordersSvc *orders.Service, tracker *stock.Tracker,
	checker *auth.Checker, hub *broadcast.Hub) *Server {
	s := &Server{
		Router:  gin.Default(),
		drafts:  drafts,
		orders:  ordersSvc,
		tracker: tracker,
		checker: checker,
		hub:     hub,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "taproom API is running"})
	})

	s.Router.GET("/ws", s.hub.HandleWS)

	v1 := s.Router.Group("/api/v1")
	{
		// Draft workspaces
		v1.POST("/workspaces", s.EnsureWorkspace)
		v1.GET("/workspaces/:id", s.GetWorkspace)
		v1.POST("/workspaces/:id/lines", s.AddLine)
		v1.PUT("/workspaces/:id/lines/:lineId", s.UpdateLine)
		v1.DELETE("/workspaces/:id/lines/:lineId", s.RemoveLine)
		v1.DELETE("/workspaces/:id/lines", s.ClearWorkspace)
		v1.POST("/workspaces/:id/hold", s.HoldWorkspace)
		v1.POST("/workspaces/:id/resume", s.ResumeWorkspace)
		v1.POST("/workspaces/:id/checkout", s.Checkout)

		// Committed orders
		v1.GET("/orders/:id", s.GetOrder)
		v1.POST("/orders/:id/confirm", s.ConfirmOrder)
		v1.POST("/orders/:id/advance", s.AdvanceOrder)
		v1.POST("/orders/:id/void", s.VoidOrder)

		// Tab sessions
		v1.GET("/sessions/:id", s.GetSession)
		v1.POST("/sessions/:id/transfer", s.TransferSession)
		v1.POST("/sessions/:id/close", s.CloseSession)
		v1.POST("/sessions/:id/abandon", s.AbandonSession)

		// Station tickets
		v1.POST("/tickets/:id/advance", s.AdvanceTicket)
		v1.GET("/stations/:dest/tickets", s.StationTickets)

		// Availability overlay
		v1.GET("/availability/:itemId", s.Availability)
	}
}

// replyError maps the error taxonomy onto HTTP statuses
func replyError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindOutOfStock, apperr.KindInvalidTransition, apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindPersistence:
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": string(apperr.KindOf(err))})
}

// operatorID extracts the explicit operator identity every workspace call
// must carry.
func operatorID(c *gin.Context) (string, bool) {
	op := c.GetHeader("X-Operator-ID")
	if op == "" {
		replyError(c, apperr.Validationf("X-Operator-ID header is required"))
		return "", false
	}
	return op, true
}
