// Package v1 implements the versioned REST handlers for the operational API.
package v1

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"drydock/internal/db/repositories"
	"drydock/internal/services"
)

// APIHandlers serves read endpoints straight from the repositories. The one
// mutating endpoint, workspace sync, goes through the lifecycle service so
// provider state and the database cannot drift apart.
type APIHandlers struct {
	repos     *repositories.Repositories
	lifecycle *services.LifecycleService
}

func NewAPIHandlers(repos *repositories.Repositories, lifecycle *services.LifecycleService) *APIHandlers {
	return &APIHandlers{
		repos:     repos,
		lifecycle: lifecycle,
	}
}

func (h *APIHandlers) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/workspaces", h.listWorkspaces)
	group.GET("/workspaces/:id", h.getWorkspace)
	group.GET("/workspaces/:id/logs", h.getWorkspaceLogs)
	group.POST("/workspaces/:id/sync", h.syncWorkspace)

	group.GET("/builds/:id", h.getBuild)

	group.GET("/projects/:id", h.getProject)
	group.GET("/projects/:id/builds", h.listProjectBuilds)
	group.GET("/projects/:id/workspaces", h.listProjectWorkspaces)

	group.GET("/jobs/:id", h.getJob)
}

func (h *APIHandlers) listWorkspaces(c *gin.Context) {
	projectID := c.Query("project_id")

	if projectID != "" {
		workspaces, err := h.repos.Workspaces.ListByProject(c.Request.Context(), projectID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"workspaces": workspaces, "count": len(workspaces)})
		return
	}

	workspaces, err := h.repos.Workspaces.ListLive(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"workspaces": workspaces, "count": len(workspaces)})
}

func (h *APIHandlers) getWorkspace(c *gin.Context) {
	ws, err := h.repos.Workspaces.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"workspace": ws})
}

func (h *APIHandlers) getWorkspaceLogs(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	entries, err := h.repos.WorkspaceLogs.ListByWorkspace(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func (h *APIHandlers) syncWorkspace(c *gin.Context) {
	ws, err := h.lifecycle.SyncStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"workspace": ws})
}

func (h *APIHandlers) getBuild(c *gin.Context) {
	build, err := h.repos.Builds.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"build": build})
}

func (h *APIHandlers) getProject(c *gin.Context) {
	project, err := h.repos.Projects.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

func (h *APIHandlers) listProjectBuilds(c *gin.Context) {
	builds, err := h.repos.Builds.ListByProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"builds": builds, "count": len(builds)})
}

func (h *APIHandlers) listProjectWorkspaces(c *gin.Context) {
	workspaces, err := h.repos.Workspaces.ListByProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"workspaces": workspaces, "count": len(workspaces)})
}

func (h *APIHandlers) getJob(c *gin.Context) {
	job, err := h.repos.Jobs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}
