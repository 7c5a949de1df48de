package projects

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/askdesk/internal/api/middleware"
	"github.com/liliang-cn/askdesk/internal/domain"
	"github.com/liliang-cn/askdesk/internal/service"
)

// Handler handles knowledge base API requests
type Handler struct {
	projectService *service.ProjectService
	fileService    *service.FileService
}

// NewHandler creates a new projects handler
func NewHandler(projectService *service.ProjectService, fileService *service.FileService) *Handler {
	return &Handler{
		projectService: projectService,
		fileService:    fileService,
	}
}

// RegisterRoutes registers project routes on /api
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	projects := r.Group("/projects")
	{
		projects.POST("", h.CreateProject)
		projects.GET("", h.ListProjects)
		projects.GET("/stats", h.GetStats)
		projects.GET("/:id", h.GetProject)
		projects.PUT("/:id", h.UpdateProject)
		projects.DELETE("/:id", h.DeleteProject)
		projects.POST("/:id/files", h.UploadFile)
		projects.GET("/:id/files", h.ListProjectFiles)
		projects.DELETE("/:id/files/:fileId", h.DeleteFile)
	}

	r.GET("/files", h.ListFiles)
}

// Project handlers

func (h *Handler) CreateProject(c *gin.Context) {
	var req domain.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	project, err := h.projectService.CreateProject(c.Request.Context(), middleware.UserID(c), &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, project)
}

func (h *Handler) ListProjects(c *gin.Context) {
	projects, err := h.projectService.ListProjects(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, projects)
}

func (h *Handler) GetProject(c *gin.Context) {
	project, err := h.projectService.GetProject(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if project == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}

	c.JSON(http.StatusOK, project)
}

func (h *Handler) UpdateProject(c *gin.Context) {
	var req domain.UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	project, err := h.projectService.UpdateProject(c.Request.Context(), middleware.UserID(c), c.Param("id"), &req)
	if err != nil {
		writeError(c, err, "project not found")
		return
	}

	c.JSON(http.StatusOK, project)
}

func (h *Handler) DeleteProject(c *gin.Context) {
	if err := h.projectService.DeleteProject(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		writeError(c, err, "project not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "project deleted"})
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.projectService.GetStats(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// File handlers

func (h *Handler) UploadFile(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	record, err := h.fileService.UploadFile(c.Request.Context(), middleware.UserID(c), c.Param("id"), file)
	if err != nil {
		writeError(c, err, "project not found")
		return
	}

	c.JSON(http.StatusCreated, record)
}

func (h *Handler) ListProjectFiles(c *gin.Context) {
	files, err := h.fileService.ListProjectFiles(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		writeError(c, err, "project not found")
		return
	}

	c.JSON(http.StatusOK, files)
}

func (h *Handler) DeleteFile(c *gin.Context) {
	err := h.fileService.DeleteFile(c.Request.Context(), middleware.UserID(c), c.Param("id"), c.Param("fileId"))
	if err != nil {
		writeError(c, err, "file not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "file deleted"})
}

func (h *Handler) ListFiles(c *gin.Context) {
	files, err := h.fileService.ListUserFiles(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, files)
}

func writeError(c *gin.Context, err error, notFound string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrUnsupportedFile):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
