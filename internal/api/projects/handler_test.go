package projects

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/askdesk/internal/api/middleware"
	"github.com/liliang-cn/askdesk/internal/domain"
	"github.com/liliang-cn/askdesk/internal/repository"
	"github.com/liliang-cn/askdesk/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const apiKey = "test-key"

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	dir := t.TempDir()
	db, err := repository.NewDB(filepath.Join(dir, "askdesk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	projectRepo := repository.NewProjectRepository(db)
	fileRepo := repository.NewFileRepository(db)
	storage := filepath.Join(dir, "files")

	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api", middleware.Auth(apiKey, ""))
	NewHandler(
		service.NewProjectService(projectRepo, fileRepo, storage, zap.NewNop()),
		service.NewFileService(projectRepo, fileRepo, repository.NewChunkRepository(db), storage, zap.NewNop()),
	).RegisterRoutes(api)
	return r
}

func request(r http.Handler, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("X-API-Key", apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func upload(t *testing.T, r http.Handler, projectID, name string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return request(r, http.MethodPost, "/api/projects/"+projectID+"/files", &body, w.FormDataContentType())
}

func TestProjects_CRUDAndFiles(t *testing.T) {
	r := newRouter(t)

	w := request(r, http.MethodPost, "/api/projects", bytes.NewBufferString(`{"name":"Contracts"}`), "application/json")
	require.Equal(t, http.StatusCreated, w.Code)
	var project domain.Project
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &project))
	assert.Equal(t, domain.ProjectStatusActive, project.Status)
	assert.Equal(t, middleware.AdminUserID, project.UserID)

	w = upload(t, r, project.ID, "nda.pdf", bytes.Repeat([]byte("p"), 300))
	require.Equal(t, http.StatusCreated, w.Code)
	var file domain.ProjectFile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &file))
	assert.Equal(t, "PDF", file.FileType)

	w = upload(t, r, project.ID, "virus.exe", []byte("MZ"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = upload(t, r, "missing", "a.txt", []byte("a"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = request(r, http.MethodGet, "/api/projects/"+project.ID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &project))
	assert.Equal(t, 1, project.FileCount)
	assert.Equal(t, int64(300), project.TotalSize)

	w = request(r, http.MethodGet, "/api/projects/stats", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"totalProjects":1,"totalFiles":1,"totalSize":300}`, w.Body.String())

	w = request(r, http.MethodGet, "/api/files", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var files []domain.ProjectFile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &files))
	assert.Len(t, files, 1)

	w = request(r, http.MethodPut, "/api/projects/"+project.ID, bytes.NewBufferString(`{"status":"ERROR"}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ERROR"`)

	w = request(r, http.MethodDelete, "/api/projects/"+project.ID+"/files/"+file.ID, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = request(r, http.MethodDelete, "/api/projects/"+project.ID+"/files/"+file.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = request(r, http.MethodDelete, "/api/projects/"+project.ID, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = request(r, http.MethodGet, "/api/projects/"+project.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProjects_Validation(t *testing.T) {
	r := newRouter(t)

	w := request(r, http.MethodPost, "/api/projects", bytes.NewBufferString(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
