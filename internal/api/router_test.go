package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/liliang-cn/askdesk/internal/chat"
	"github.com/liliang-cn/askdesk/internal/repository"
	"github.com/liliang-cn/askdesk/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T, cfg RouterConfig) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	dir := t.TempDir()

	db, err := repository.NewDB(filepath.Join(dir, "askdesk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	projectRepo := repository.NewProjectRepository(db)
	fileRepo := repository.NewFileRepository(db)
	chunkRepo := repository.NewChunkRepository(db)
	completion := service.NewCompletionService(service.NewEchoProvider(0), "", logger)

	open := service.OpenRegistries(func(userID string) chat.Store {
		return repository.NewStateRepository(db, chat.StateKey+":"+userID)
	}, logger)

	return SetupRouter(Services{
		Completion: completion,
		Sessions:   service.NewSessionService(open, chat.NewDispatcher("http://127.0.0.1:1/api/chat"), logger),
		Projects:   service.NewProjectService(projectRepo, fileRepo, filepath.Join(dir, "files"), logger),
		Files:      service.NewFileService(projectRepo, fileRepo, chunkRepo, filepath.Join(dir, "files"), logger),
		Ask:        service.NewAskService(projectRepo, chunkRepo, completion, logger),
	}, cfg, logger)
}

func chatRequest(header, value string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		bytes.NewBufferString(`{"messages":[{"role":"user","content":"hi"}],"stream":true}`))
	req.Header.Set("Content-Type", "application/json")
	if header != "" {
		req.Header.Set(header, value)
	}
	return req
}

func TestRouter_Health(t *testing.T) {
	r := newTestRouter(t, RouterConfig{APIKey: "key"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRouter_RequiresAuth(t *testing.T) {
	r := newTestRouter(t, RouterConfig{APIKey: "key"})

	for _, path := range []string{"/api/chat/sessions", "/api/projects", "/api/files"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/chat/sessions", nil)
	req.Header.Set("X-API-Key", "key")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Generate a marketing email", "seeded sessions are listed")
}

func TestRouter_RateLimitsChat(t *testing.T) {
	r := newTestRouter(t, RouterConfig{RequestsPerMinute: 1, Burst: 1})

	send := func() int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, chatRequest("", ""))
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
}

func TestRouter_RateLimitsEachUser(t *testing.T) {
	const secret = "router-secret"
	r := newTestRouter(t, RouterConfig{
		JWTSecret:         secret,
		InternalToken:     "internal-token",
		RequestsPerMinute: 1,
		Burst:             1,
	})

	send := func(header, value string) int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, chatRequest(header, value))
		return w.Code
	}
	bearer := func(userID string) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": userID}).
			SignedString([]byte(secret))
		require.NoError(t, err)
		return "Bearer " + token
	}

	for _, user := range []string{"u1", "u2", "u3", "u4", "u5"} {
		assert.Equal(t, http.StatusOK, send("Authorization", bearer(user)), user)
	}
	assert.Equal(t, http.StatusTooManyRequests, send("Authorization", bearer("u1")))

	// The server's own dispatches are never limited
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, send("Authorization", "Bearer internal-token"))
	}
}

func TestRouter_AskIsRateLimited(t *testing.T) {
	r := newTestRouter(t, RouterConfig{RequestsPerMinute: 1, Burst: 1})

	ask := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/ask", bytes.NewBufferString(`{"question":"anything?"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, ask())
	assert.Equal(t, http.StatusTooManyRequests, ask())
}
