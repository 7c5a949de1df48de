package completion

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/askdesk/internal/api/form"
	"github.com/liliang-cn/askdesk/internal/domain"
	"github.com/liliang-cn/askdesk/internal/service"
	"go.uber.org/zap"
)

// Handler serves the chat completion endpoint the dispatcher posts to
type Handler struct {
	completionService *service.CompletionService
	logger            *zap.Logger
}

// NewHandler creates a new completion handler
func NewHandler(completionService *service.CompletionService, logger *zap.Logger) *Handler {
	return &Handler{completionService: completionService, logger: logger}
}

// RegisterRoutes registers the completion route
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", h.Chat)
}

// Chat answers a JSON or multipart completion request, streamed as SSE
// data frames when stream is true.
func (h *Handler) Chat(c *gin.Context) {
	req, files, err := bindRequest(c)
	if errors.Is(err, errInvalidMessages) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid messages format"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !req.Stream {
		resp, err := h.completionService.Complete(c.Request.Context(), req, files)
		if err != nil {
			h.fail(c, req, err)
			return
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	started := false
	start := func() {
		c.Header("Content-Type", "text/plain; charset=utf-8")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Status(http.StatusOK)
		started = true
	}

	_, err = h.completionService.Stream(c.Request.Context(), req, files, func(fragment string) error {
		if !started {
			start()
		}
		data, err := json.Marshal(domain.NewCompletionChunk(fragment))
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "%s%s\n\n", domain.SSEDataPrefix, data); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	})
	if err != nil {
		if !started {
			h.fail(c, req, err)
			return
		}
		// the client sees the stream end without the sentinel
		h.logger.Warn("Completion stream aborted", zap.String("chat_id", req.ChatID), zap.Error(err))
		return
	}

	if !started {
		start()
	}
	fmt.Fprintf(c.Writer, "%s%s\n\n", domain.SSEDataPrefix, domain.SSEDone)
	c.Writer.Flush()
}

func (h *Handler) fail(c *gin.Context, req *domain.CompletionRequest, err error) {
	if errors.Is(err, domain.ErrInvalidRequest) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.logger.Error("Completion failed", zap.String("chat_id", req.ChatID), zap.Error(err))
	c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to get response from backend"})
}

var errInvalidMessages = errors.New("invalid messages format")

func bindRequest(c *gin.Context) (*domain.CompletionRequest, []domain.Attachment, error) {
	req := &domain.CompletionRequest{}
	if !form.IsMultipart(c) {
		if err := c.ShouldBindJSON(req); err != nil {
			return nil, nil, err
		}
		return req, nil, nil
	}

	if err := json.Unmarshal([]byte(c.PostForm("messages")), &req.Messages); err != nil {
		return nil, nil, errInvalidMessages
	}
	req.Model = c.PostForm("model")
	req.ChatID = c.PostForm("chatId")
	req.Stream = c.PostForm("stream") == "true"

	files, err := form.Attachments(c, "files")
	if err != nil {
		return nil, nil, err
	}
	return req, files, nil
}
