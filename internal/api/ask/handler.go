package ask

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/askdesk/internal/api/middleware"
	"github.com/liliang-cn/askdesk/internal/domain"
	"github.com/liliang-cn/askdesk/internal/service"
	"go.uber.org/zap"
)

// Handler serves questions over the knowledge base
type Handler struct {
	askService *service.AskService
	logger     *zap.Logger
}

// NewHandler creates a new ask handler
func NewHandler(askService *service.AskService, logger *zap.Logger) *Handler {
	return &Handler{askService: askService, logger: logger}
}

// RegisterRoutes registers the ask route
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/ask", h.Ask)
}

// Ask answers a question from the user's documents
func (h *Handler) Ask(c *gin.Context) {
	var req domain.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	resp, err := h.askService.Ask(c.Request.Context(), middleware.UserID(c), &req)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, resp)
	case errors.Is(err, domain.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Question is required"})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
	default:
		h.logger.Error("Ask failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to get response from backend"})
	}
}
