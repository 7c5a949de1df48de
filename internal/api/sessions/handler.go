package sessions

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/askdesk/internal/api/form"
	"github.com/liliang-cn/askdesk/internal/api/middleware"
	"github.com/liliang-cn/askdesk/internal/domain"
	"github.com/liliang-cn/askdesk/internal/service"
	"go.uber.org/zap"
)

// Handler serves the chat sessions API
type Handler struct {
	sessionService *service.SessionService
	logger         *zap.Logger
}

// NewHandler creates a new sessions handler
func NewHandler(sessionService *service.SessionService, logger *zap.Logger) *Handler {
	return &Handler{sessionService: sessionService, logger: logger}
}

// RegisterRoutes registers session routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("", h.List)
	r.POST("", h.Create)
	r.GET("/selected", h.Selected)
	r.GET("/:slug", h.Get)
	r.PATCH("/:slug", h.Rename)
	r.DELETE("/:slug", h.Delete)
	r.POST("/:slug/select", h.Select)
	r.POST("/:slug/messages", h.AppendMessage)
	r.POST("/:slug/send", h.Send)
}

// List returns the caller's sessions
func (h *Handler) List(c *gin.Context) {
	sessions, err := h.sessionService.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

func (h *Handler) Create(c *gin.Context) {
	var req domain.CreateSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	resp, err := h.sessionService.Create(c.Request.Context(), middleware.UserID(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) Get(c *gin.Context) {
	session, err := h.sessionService.Get(c.Request.Context(), middleware.UserID(c), c.Param("slug"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) Rename(c *gin.Context) {
	var req domain.RenameSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.sessionService.Rename(c.Request.Context(), middleware.UserID(c), c.Param("slug"), req.Title)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) Delete(c *gin.Context) {
	if err := h.sessionService.Delete(c.Request.Context(), middleware.UserID(c), c.Param("slug")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) Select(c *gin.Context) {
	session, err := h.sessionService.Select(c.Request.Context(), middleware.UserID(c), c.Param("slug"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// Selected returns the selected session, or null
func (h *Handler) Selected(c *gin.Context) {
	session, err := h.sessionService.Selected(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) AppendMessage(c *gin.Context) {
	var req domain.AppendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.sessionService.AppendMessage(c.Request.Context(), middleware.UserID(c), c.Param("slug"), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// Send streams the assistant reply as SSE: a message event per transcript
// change and a final done event with the settled message.
func (h *Handler) Send(c *gin.Context) {
	userID := middleware.UserID(c)
	slug := c.Param("slug")
	var req domain.SendMessageRequest
	var files []domain.Attachment
	var err error

	if form.IsMultipart(c) {
		req.Content = c.PostForm("content")
		req.Model = c.PostForm("model")
		files, err = form.Attachments(c, "files")
	} else {
		err = c.ShouldBindJSON(&req)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if strings.TrimSpace(req.Content) == "" && len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}
	if _, err := h.sessionService.Get(c.Request.Context(), userID, slug); err != nil {
		writeError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	msg, err := h.sessionService.Send(c.Request.Context(), userID, slug, &req, files, func(m domain.Message) {
		c.SSEvent("message", m)
		c.Writer.Flush()
	})
	if err != nil {
		h.logger.Warn("Chat send failed", zap.String("slug", slug), zap.Error(err))
		c.SSEvent("error", gin.H{"error": err.Error()})
	}
	if msg != nil {
		c.SSEvent("done", msg)
	}
	c.Writer.Flush()
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Chat not found"})
	case errors.Is(err, domain.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
