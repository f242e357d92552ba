package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/loopcraft/iamd/internal/domain"
	"github.com/loopcraft/iamd/internal/service"
)

// IAMHandler serves role and permission administration.
type IAMHandler struct {
	IAM *service.IAMService
}

// NewIAMHandler creates the handler set.
func NewIAMHandler(iam *service.IAMService) *IAMHandler {
	return &IAMHandler{IAM: iam}
}

type roleRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
	IsDefault   bool     `json:"is_default"`
}

// ListRoles returns all roles.
func (h *IAMHandler) ListRoles(c *gin.Context) {
	roles, err := h.IAM.ListRoles(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roles": roles})
}

// CreateRole creates a role.
func (h *IAMHandler) CreateRole(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.ErrInvalidInput)
		return
	}

	role, err := h.IAM.CreateRole(c.Request.Context(), req.Name, req.Description, req.Permissions, req.IsDefault)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, role)
}

// UpdateRole replaces a role's definition.
func (h *IAMHandler) UpdateRole(c *gin.Context) {
	roleID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.ErrInvalidInput)
		return
	}

	role, err := h.IAM.UpdateRole(c.Request.Context(), roleID, req.Name, req.Description, req.Permissions, req.IsDefault)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, role)
}

// DeleteRole removes an unreferenced role.
func (h *IAMHandler) DeleteRole(c *gin.Context) {
	roleID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.IAM.DeleteRole(c.Request.Context(), roleID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListPermissions returns all registered permissions.
func (h *IAMHandler) ListPermissions(c *gin.Context) {
	perms, err := h.IAM.ListPermissions(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"permissions": perms})
}

// CreatePermission registers a permission.
func (h *IAMHandler) CreatePermission(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required"`
		Resource string `json:"resource"`
		Action   string `json:"action"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.ErrInvalidInput)
		return
	}

	perm, err := h.IAM.CreatePermission(c.Request.Context(), req.Name, req.Resource, req.Action)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, perm)
}

// AssignRole adds a role to a user.
func (h *IAMHandler) AssignRole(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}
	roleID, ok := pathID(c, "roleID")
	if !ok {
		return
	}

	if err := h.IAM.AssignRole(c.Request.Context(), userID, roleID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveRole takes a role away from a user.
func (h *IAMHandler) RemoveRole(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}
	roleID, ok := pathID(c, "roleID")
	if !ok {
		return
	}

	if err := h.IAM.RemoveRole(c.Request.Context(), userID, roleID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ResolvePermissions returns a user's effective permission set.
func (h *IAMHandler) ResolvePermissions(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}

	perms, err := h.IAM.ResolvePermissions(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"permissions": perms})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, domain.ErrInvalidInput)
		return 0, false
	}
	return id, true
}
