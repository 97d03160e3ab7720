package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jon4hz/chartwise/internal/api/auth"
	"github.com/jon4hz/chartwise/internal/api/models"
	"github.com/jon4hz/chartwise/internal/apperr"
	"github.com/jon4hz/chartwise/internal/engine"
)

var errUserNotFound = apperr.NotFound("user not found")

type AdminHandler struct {
	engine *engine.Engine
}

func NewAdmin(eng *engine.Engine) *AdminHandler {
	return &AdminHandler{
		engine: eng,
	}
}

// ListUsers returns all users.
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.engine.ListUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// UpdateUserRole changes the role of a user.
func (h *AdminHandler) UpdateUserRole(c *gin.Context) {
	id, err := parseUintParam(c.Param("id"))
	if err != nil {
		respondError(c, errUserNotFound)
		return
	}

	var req models.RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errInvalidBody)
		return
	}

	if err := h.engine.UpdateUserRole(c.Request.Context(), auth.IdentityFrom(c), id, req.Role); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Role updated successfully"})
}

// ToggleUserBlock blocks or unblocks a user.
func (h *AdminHandler) ToggleUserBlock(c *gin.Context) {
	id, err := parseUintParam(c.Param("id"))
	if err != nil {
		respondError(c, errUserNotFound)
		return
	}

	blocked, err := h.engine.ToggleUserBlock(c.Request.Context(), auth.IdentityFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	message := "User unblocked successfully"
	if blocked {
		message = "User blocked successfully"
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}

// DeleteUser deletes a user. Their charts are kept.
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	id, err := parseUintParam(c.Param("id"))
	if err != nil {
		respondError(c, errUserNotFound)
		return
	}

	if err := h.engine.DeleteUser(c.Request.Context(), auth.IdentityFrom(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

// Stats returns the platform statistics.
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.engine.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Jobs returns the state of the scheduled jobs.
func (h *AdminHandler) Jobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": h.engine.Jobs()})
}
