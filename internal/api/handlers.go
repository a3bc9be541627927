package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"taproom/internal/apperr"
	"taproom/internal/monitoring"
	"taproom/internal/orders"
	"taproom/internal/pricing"
	"taproom/internal/workspace"
)

func parseID(c *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil {
		replyError(c, apperr.Validationf("invalid %s", param))
		return 0, false
	}
	return uint(id), true
}

// Draft workspace handlers

// EnsureWorkspace returns the operator's active draft, creating one when
// needed, and optionally attaches table/patron/tier in the same call.
func (s *Server) EnsureWorkspace(c *gin.Context) {
	op, ok := operatorID(c)
	if !ok {
		return
	}
	var req struct {
		TableNumber int    `json:"table_number"`
		PatronName  string `json:"patron_name"`
		Tier        string `json:"tier"`
	}
	_ = c.ShouldBindJSON(&req) // body is optional

	ws := s.drafts.Ensure(op)
	if req.TableNumber != 0 || req.PatronName != "" || req.Tier != "" {
		var err error
		ws, err = s.drafts.Attach(op, ws.ID, req.TableNumber, req.PatronName, pricing.Tier(req.Tier))
		if err != nil {
			replyError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, ws)
}

func (s *Server) GetWorkspace(c *gin.Context) {
	op, ok := operatorID(c)
	if !ok {
		return
	}
	ws, err := s.drafts.Get(op, c.Param("id"))
	if err != nil {
		replyError(c, err)
		return
	}
	c.JSON(http.StatusOK, ws)
}

func (s *Server) AddLine(c *gin.Context) {
	op, ok := operatorID(c)
	if !ok {
		return
	}
	var req struct {
		ItemID    uint `json:"item_id"`
		PackageID uint `json:"package_id"`
		Quantity  int  `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		replyError(c, apperr.Validationf("invalid request body"))
		return
	}
	ws, err := s.drafts.AddLine(op, c.Param("id"), workspace.LineRef{
		ItemID: req.ItemID, PackageID: req.PackageID, Quantity: req.Quantity,
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindOutOfStock {
			monitoring.OutOfStockRejections.Inc()
		}
		replyError(c, err)
		return
	}
	monitoring.ActiveReservations.Set(float64(s.tracker.TotalReserved()))
	c.JSON(http.StatusOK, ws)
}

func (s *Server) UpdateLine(c *gin.Context) {
	op, ok := operatorID(c)
	if !ok {
		return
	}
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		replyError(c, apperr.Validationf("invalid request body"))
		return
	}
	ws, err := s.drafts.UpdateLineQuantity(op, c.Param("id"), c.Param("lineId"), req.Quantity)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindOutOfStock {
			monitoring.OutOfStockRejections.Inc()
		}
		replyError(c, err)
		return
	}
	monitoring.ActiveReservations.Set(float64(s.tracker.TotalReserved()))
	c.JSON(http.StatusOK, ws)
}

func (s *Server) RemoveLine(c *gin.Context) {
	op, ok := operatorID(c)
	if !ok {
		return
	}
	ws, err := s.drafts.RemoveLine(op, c.Param("id"), c.Param("lineId"))
	if err != nil {
		replyError(c, err)
		return
	}
	monitoring.ActiveReservations.Set(float64(s.tracker.TotalReserved()))
	c.JSON(http.StatusOK, ws)
}

func (s *Server) ClearWorkspace(c *gin.Context) {
	op, ok := operatorID(c)
	if !ok {
		return
	}
	ws, err := s.drafts.Clear(op, c.Param("id"))
	if err != nil {
		replyError(c, err)
		return
	}
	monitoring.ActiveReservations.Set(float64(s.tracker.TotalReserved()))
	c.JSON(http.StatusOK, ws)
}

func (s *Server) HoldWorkspace(c *gin.Context) {
	op, ok := operatorID(c)
	if !ok {
		return
	}
	ws, err := s.drafts.Hold(op, c.Param("id"))
	if err != nil {
		replyError(c, err)
		return
	}
	c.JSON(http.StatusOK, ws)
}

func (s *Server) ResumeWorkspace(c *gin.Context) {
	op, ok := operatorID(c)
	if !ok {
		return
	}
	ws, err := s.drafts.Resume(op, c.Param("id"))
	if err != nil {
		replyError(c, err)
		return
	}
	c.JSON(http.StatusOK, ws)
}

// Checkout finalizes the draft into a persisted order
func (s *Server) Checkout(c *gin.Context) {
	op, ok := operatorID(c)
	if !ok {
		return
	}
	var req struct {
		TableNumber int    `json:"table_number"`
		PatronName  string `json:"patron_name"`
		Confirm     bool   `json:"confirm"`
	}
	_ = c.ShouldBindJSON(&req) // body is optional; table/patron may come from the workspace
	order, err := s.orders.Finalize(orders.FinalizeRequest{
		OperatorID:  op,
		WorkspaceID: c.Param("id"),
		TableNumber: req.TableNumber,
		PatronName:  req.PatronName,
		Confirm:     req.Confirm,
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindOutOfStock {
			monitoring.OutOfStockRejections.Inc()
		}
		replyError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// Committed order handlers

func (s *Server) GetOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	order, err := s.orders.Get(id)
	if err != nil {
		replyError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) ConfirmOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	order, err := s.orders.Confirm(id)
	if err != nil {
		replyError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) AdvanceOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	order, err := s.orders.Advance(id)
	if err != nil {
		replyError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// VoidOrder cancels an order. The approval token may belong to any
// principal with a privileged role; terminals are shared between operators.
func (s *Server) VoidOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := s.checker.RequirePrivilege(c.GetHeader("X-Approval-Token")); err != nil {
		replyError(c, err)
		return
	}
	order, err := s.orders.Void(id)
	if err != nil {
		replyError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// Tab session handlers

func (s *Server) GetSession(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	session, err := s.orders.GetSession(id)
	if err != nil {
		replyError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (s *Server) TransferSession(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req struct {
		TableNumber int `json:"table_number"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		replyError(c, apperr.Validationf("invalid request body"))
		return
	}
	session, err := s.orders.TransferSession(id, req.TableNumber)
	if err != nil {
		replyError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (s *Server) CloseSession(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	session, err := s.orders.CloseSession(id)
	if err != nil {
		replyError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (s *Server) AbandonSession(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	session, err := s.orders.AbandonSession(id)
	if err != nil {
		replyError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// Station ticket handlers

func (s *Server) AdvanceTicket(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ticket, err := s.orders.AdvanceTicket(id)
	if err != nil {
		replyError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func (s *Server) StationTickets(c *gin.Context) {
	tickets, err := s.orders.StationTickets(c.Param("dest"))
	if err != nil {
		replyError(c, err)
		return
	}
	c.JSON(http.StatusOK, tickets)
}

// Availability reports the live reservation-aware stock view for one item
func (s *Server) Availability(c *gin.Context) {
	id, ok := parseID(c, "itemId")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"item_id":   id,
		"available": s.tracker.Available(id),
		"indicator": s.tracker.IndicatorFor(id),
	})
}
