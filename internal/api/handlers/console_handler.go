package handlers

import (
	"net/http"
	"strconv"

	"example.com/sandbooking/console/internal/console"
	"example.com/sandbooking/console/internal/form"
	"example.com/sandbooking/console/internal/models"
	"example.com/sandbooking/console/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ConsoleHandler exposes the console engine to the desktop UI
type ConsoleHandler struct {
	svc *console.Service
}

// NewConsoleHandler creates a new console handler
func NewConsoleHandler(svc *console.Service) *ConsoleHandler {
	return &ConsoleHandler{svc: svc}
}

// OpenFormRequest selects the form mode and, for edit/view, the record
type OpenFormRequest struct {
	Mode     form.Mode `json:"mode" binding:"required,oneof=create edit view"`
	RecordID int64     `json:"record_id"`
}

// SetFieldRequest is a user-origin field write
type SetFieldRequest struct {
	Field form.Field `json:"field" binding:"required"`
	Value string     `json:"value"`
}

// StartSessionRequest launches an automation run
type StartSessionRequest struct {
	BookingMasterID int64 `json:"booking_master_id" binding:"required"`
}

// UserRequest is the create/update payload for a credential record
type UserRequest struct {
	Username string `json:"username" binding:"required,min=3"`
	Password string `json:"password" binding:"required,min=6"`
}

func gatewayError(c *gin.Context, err error) {
	log.Warn().Err(err).Msg("gateway operation failed")
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}

// HandleListDistricts returns all districts
func (h *ConsoleHandler) HandleListDistricts(c *gin.Context) {
	districts, err := h.svc.Districts(c.Request.Context())
	if err != nil {
		gatewayError(c, err)
		return
	}
	c.JSON(http.StatusOK, districts)
}

// HandleListSlots returns the current delivery slot window
func (h *ConsoleHandler) HandleListSlots(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Slots())
}

// HandleListMasterData returns the cached master data list
func (h *ConsoleHandler) HandleListMasterData(c *gin.Context) {
	records, err := h.svc.ListMasterData(c.Request.Context())
	if err != nil {
		gatewayError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// HandleGetMasterData returns a single master data record
func (h *ConsoleHandler) HandleGetMasterData(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
		return
	}

	record, err := h.svc.GetMasterData(c.Request.Context(), id)
	if err != nil {
		gatewayError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// HandleListUsers returns the cached credential records
func (h *ConsoleHandler) HandleListUsers(c *gin.Context) {
	users, err := h.svc.ListUsers(c.Request.Context())
	if err != nil {
		gatewayError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// HandleCreateUser inserts a credential record
func (h *ConsoleHandler) HandleCreateUser(c *gin.Context) {
	var req UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := &models.User{Username: req.Username, Password: req.Password}
	if err := h.svc.CreateUser(c.Request.Context(), user); err != nil {
		gatewayError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true})
}

// HandleUpdateUser updates a credential record
func (h *ConsoleHandler) HandleUpdateUser(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var req UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := &models.User{ID: id, Username: req.Username, Password: req.Password}
	if err := h.svc.UpdateUser(c.Request.Context(), id, user); err != nil {
		gatewayError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// HandleOpenForm opens the booking form in the requested mode
func (h *ConsoleHandler) HandleOpenForm(c *gin.Context) {
	var req OpenFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var err error
	switch req.Mode {
	case form.ModeCreate:
		h.svc.Form.OpenCreate()
	case form.ModeEdit:
		err = h.svc.Form.OpenEdit(c.Request.Context(), req.RecordID)
	case form.ModeView:
		err = h.svc.Form.OpenView(c.Request.Context(), req.RecordID)
	}
	if err != nil {
		gatewayError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.svc.Form.Snapshot())
}

// HandleFormSnapshot returns the current form state
func (h *ConsoleHandler) HandleFormSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Form.Snapshot())
}

// HandleSetField applies a user-origin field write
func (h *ConsoleHandler) HandleSetField(c *gin.Context) {
	var req SetFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.Form.SetField(c.Request.Context(), req.Field, req.Value); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, form.ErrFormClosed) || errors.Is(err, form.ErrFormReadOnly) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.svc.Form.Snapshot())
}

// HandleSubmitForm validates and submits the form
func (h *ConsoleHandler) HandleSubmitForm(c *gin.Context) {
	err := h.svc.Form.Submit(c.Request.Context())
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}

	var verr *form.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":        verr.Error(),
			"field_errors": verr.Fields,
		})
	case errors.Is(err, form.ErrFormClosed), errors.Is(err, form.ErrFormReadOnly):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		gatewayError(c, err)
	}
}

// HandleCloseForm discards the form state
func (h *ConsoleHandler) HandleCloseForm(c *gin.Context) {
	h.svc.Form.Close()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// HandleListSessions returns the tracked booking sessions
func (h *ConsoleHandler) HandleListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Tracker.Sessions())
}

// HandleStartSession launches an automation run for a master data record
func (h *ConsoleHandler) HandleStartSession(c *gin.Context) {
	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.svc.Tracker.Start(c.Request.Context(), req.BookingMasterID)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrUnknownRecord):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, session.ErrRunInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			gatewayError(c, err)
		}
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// HandleSessionInFlight reports whether a run for the record is still
// awaiting its response
func (h *ConsoleHandler) HandleSessionInFlight(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"in_flight": h.svc.Tracker.InFlight(id)})
}

// HandleCloseSession dismisses a tracked session
func (h *ConsoleHandler) HandleCloseSession(c *gin.Context) {
	removed := h.svc.Tracker.Close(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// RegisterRoutes registers the handler's routes
func (h *ConsoleHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")

	api.GET("/districts", h.HandleListDistricts)
	api.GET("/slots", h.HandleListSlots)

	api.GET("/master-data", h.HandleListMasterData)
	api.GET("/master-data/:id", h.HandleGetMasterData)

	api.GET("/users", h.HandleListUsers)
	api.POST("/users", h.HandleCreateUser)
	api.PUT("/users/:id", h.HandleUpdateUser)

	api.POST("/form/open", h.HandleOpenForm)
	api.GET("/form", h.HandleFormSnapshot)
	api.POST("/form/fields", h.HandleSetField)
	api.POST("/form/submit", h.HandleSubmitForm)
	api.POST("/form/close", h.HandleCloseForm)

	api.GET("/sessions", h.HandleListSessions)
	api.POST("/sessions", h.HandleStartSession)
	api.GET("/sessions/in-flight/:id", h.HandleSessionInFlight)
	api.DELETE("/sessions/:id", h.HandleCloseSession)
}
